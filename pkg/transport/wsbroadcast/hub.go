// Package wsbroadcast multiplexes a Pipeline's typed event streams to
// external subscribers (a UI, an evaluation harness) over a single
// websocket per client, generalizing the teacher's lokutor TTS client
// connection handling (pkg/providers/tts/lokutor.go) to the server side of
// github.com/coder/websocket.
package wsbroadcast

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/utterance-intent/pipeline/pkg/pipeline/orchestrator"
	"github.com/utterance-intent/pipeline/pkg/pipeline/utterance"
)

// clientQueueDepth bounds how many undelivered envelopes a single slow
// client may accumulate. Unlike events.Publisher's in-process subscribers,
// a websocket client is an external, untrusted consumer that can vanish or
// wedge without ever coming back; past this depth the oldest buffered
// envelope is dropped rather than growing memory for a connection nothing
// may ever finish reading.
const clientQueueDepth = 256

// writeTimeout bounds a single client write, per spec §7 ("a write failure
// stops recording but does not stop the pipeline") applied to the websocket
// transport: a wedged client is disconnected, never allowed to back up the
// event path.
const writeTimeout = 5 * time.Second

// Logger matches the teacher's minimal structured-logging contract.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noOpLogger struct{}

func (noOpLogger) Debug(string, ...any) {}
func (noOpLogger) Info(string, ...any)  {}
func (noOpLogger) Warn(string, ...any)  {}
func (noOpLogger) Error(string, ...any) {}

// Envelope is the wire format sent to every subscriber: one JSON object per
// event, tagged with the logical stream kind from spec §4.5 so a single
// websocket carries all nine streams without a client having to open one
// connection per stream.
type Envelope struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type client struct {
	id   string
	conn *websocket.Conn
	out  chan Envelope
}

// Hub accepts websocket connections and broadcasts every envelope it
// receives from Attach to all currently connected clients, never blocking
// on a slow or dead one.
type Hub struct {
	logger Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// New builds an empty Hub. Call Attach once to start forwarding a
// Pipeline's streams, and use ServeHTTP (or Handler) to accept clients.
func New(logger Logger) *Hub {
	if logger == nil {
		logger = noOpLogger{}
	}
	return &Hub{logger: logger, clients: make(map[string]*client)}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection as a broadcast subscriber. It blocks until the connection
// closes, matching coder/websocket's accept-then-read-loop convention
// (see codeready-toolchain-tarsy's handler_ws.go for the same shape).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("wsbroadcast: accept failed", "err", err)
		return
	}
	h.handleConn(r.Context(), conn)
}

func (h *Hub) handleConn(ctx context.Context, conn *websocket.Conn) {
	c := &client{id: uuid.NewString(), conn: conn, out: make(chan Envelope, clientQueueDepth)}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.writeLoop(ctx, c)

	// The broadcast path is write-only; the read loop exists solely to
	// detect client-initiated close (coder/websocket requires a reader to
	// observe close frames and connection errors).
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.out:
			if !ok {
				return
			}
			if err := h.send(ctx, c, env); err != nil {
				h.logger.Warn("wsbroadcast: send failed, dropping client", "client", c.id, "err", err)
				_ = c.conn.Close(websocket.StatusAbnormalClosure, "send failed")
				return
			}
		}
	}
}

func (h *Hub) send(ctx context.Context, c *client, env Envelope) error {
	b, err := sonic.Marshal(env)
	if err != nil {
		return fmt.Errorf("wsbroadcast: marshal %s envelope: %w", env.Kind, err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, b)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	close(c.out)
}

// ActiveClients reports the number of currently connected subscribers.
func (h *Hub) ActiveClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast enqueues env on every connected client's outbound queue,
// dropping the oldest pending envelope for a client whose queue is full
// rather than blocking on it or letting it grow without bound.
func (h *Hub) broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.out <- env:
		default:
			select {
			case <-c.out:
			default:
			}
			select {
			case c.out <- env:
			default:
			}
		}
	}
}

// Attach subscribes to every stream on p and forwards each event as an
// Envelope until ctx is cancelled or p's Publishers are closed. It runs in
// its own goroutine and returns immediately.
func (h *Hub) Attach(ctx context.Context, p *orchestrator.Pipeline) {
	asrCh := p.AsrEvents.Subscribe()
	endCh := p.EndSignals.Subscribe()
	uttCh := p.UtteranceEvents.Subscribe()
	intentCh := p.IntentEvents.Subscribe()
	corrCh := p.Corrections.Subscribe()
	actionCh := p.Actions.Subscribe()
	diagCh := p.Diagnostics.Subscribe()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-asrCh:
				if !ok {
					return
				}
				h.broadcast(Envelope{Kind: asrKind(e), Timestamp: e.ReceivedAt, Payload: e})
			case t, ok := <-endCh:
				if !ok {
					return
				}
				h.broadcast(Envelope{Kind: "utterance_end_signal", Timestamp: t, Payload: nil})
			case ev, ok := <-uttCh:
				if !ok {
					return
				}
				h.broadcast(Envelope{Kind: "utterance_" + string(ev.Type), Timestamp: ev.Timestamp, Payload: ev})
			case ev, ok := <-intentCh:
				if !ok {
					return
				}
				h.broadcast(Envelope{Kind: "intent_" + string(ev.Kind), Timestamp: ev.Timestamp, Payload: ev})
			case ev, ok := <-corrCh:
				if !ok {
					return
				}
				h.broadcast(Envelope{Kind: "intent_corrected", Timestamp: time.Now(), Payload: ev})
			case ev, ok := <-actionCh:
				if !ok {
					return
				}
				h.broadcast(Envelope{Kind: "action_triggered", Timestamp: ev.Timestamp, Payload: ev})
			case ev, ok := <-diagCh:
				if !ok {
					return
				}
				h.broadcast(Envelope{Kind: "diagnostic", Timestamp: ev.Timestamp, Payload: ev})
			}
		}
	}()
}

func asrKind(e utterance.AsrEvent) string {
	if e.IsFinal {
		return "asr_final"
	}
	return "asr_partial"
}
