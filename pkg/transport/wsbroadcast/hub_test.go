package wsbroadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
	"github.com/utterance-intent/pipeline/pkg/pipeline/orchestrator"
	"github.com/utterance-intent/pipeline/pkg/pipeline/utterance"
)

func TestHubBroadcastsPipelineEventsToClient(t *testing.T) {
	hub := New(nil)
	server := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer server.Close()

	p := orchestrator.New(orchestrator.DefaultConfig(), intent.NewHeuristicStrategy(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Attach(ctx, p)
	p.Start(ctx)
	defer p.Stop()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws://"+strings.TrimPrefix(server.URL, "http://"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitForClient(t, hub)

	p.ProcessAsrEvent(ctx, utterance.AsrEvent{Text: "what is a closure?", IsUtteranceEnd: true, ReceivedAt: time.Now()})

	sawFinalIntent := false
	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	for !sawFinalIntent {
		_, data, err := conn.Read(readCtx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env Envelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Kind == "intent_final" {
			sawFinalIntent = true
		}
	}
}

func TestHubBoundsSlowClientQueueRatherThanBlocking(t *testing.T) {
	hub := New(nil)
	c := &client{id: "slow", out: make(chan Envelope, 2)}
	hub.register(c)
	defer hub.unregister(c)

	for i := 0; i < 10; i++ {
		hub.broadcast(Envelope{Kind: "diagnostic"})
	}
	if len(c.out) > 2 {
		t.Fatalf("expected queue to stay bounded at 2, got %d", len(c.out))
	}
}

func waitForClient(t *testing.T, hub *Hub) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ActiveClients() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for client registration")
}
