package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/utterance-intent/pipeline/pkg/pipeline/action"
	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
	"github.com/utterance-intent/pipeline/pkg/pipeline/utterance"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Action.ConflictWindow = 30 * time.Millisecond
	cfg.TickInterval = 10 * time.Millisecond
	return cfg
}

func TestPipelineEndToEndImperativeTriggersAction(t *testing.T) {
	p := New(fastConfig(), intent.NewHeuristicStrategy(), nil)

	actionCh := p.Actions.Subscribe()
	fired := make(chan action.Event, 4)
	p.RegisterActionHandler(intent.SubtypeStop, func(e action.Event) { fired <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	p.ProcessAsrEvent(ctx, utterance.AsrEvent{Text: "stop", IsUtteranceEnd: true, ReceivedAt: time.Now()})

	select {
	case ev := <-fired:
		if ev.Subtype != intent.SubtypeStop {
			t.Fatalf("expected Stop action, got %s", ev.Subtype)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Stop action to fire")
	}

	select {
	case ev := <-actionCh:
		if ev.WasDebounced {
			t.Fatal("expected first action not to be debounced")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for action event on the published stream")
	}
}

func TestPipelinePublishesUtteranceAndIntentEvents(t *testing.T) {
	p := New(DefaultConfig(), intent.NewHeuristicStrategy(), nil)

	utteranceCh := p.UtteranceEvents.Subscribe()
	intentCh := p.IntentEvents.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	p.ProcessAsrEvent(ctx, utterance.AsrEvent{Text: "what is a closure?", IsUtteranceEnd: true, ReceivedAt: time.Now()})

	var sawOpen, sawFinal bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-utteranceCh:
			if ev.Type == utterance.Open {
				sawOpen = true
			}
			if ev.Type == utterance.Final {
				sawFinal = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for utterance events")
		}
	}
	if !sawOpen || !sawFinal {
		t.Fatalf("expected both Open and Final utterance events, got open=%v final=%v", sawOpen, sawFinal)
	}

	select {
	case ev := <-intentCh:
		if ev.Kind != intent.Final || ev.Intent.Type != intent.Question {
			t.Fatalf("expected final Question intent, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for intent event")
	}
}
