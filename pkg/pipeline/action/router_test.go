package action

import (
	"testing"
	"time"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
)

func newTestRouter() (*Router, *[]Event, *time.Time) {
	events := &[]Event{}
	clock := time.Now()
	r := New(DefaultConfig(), nil, func(e Event) { *events = append(*events, e) })
	r.now = func() time.Time { return clock }
	return r, events, &clock
}

func stopIntent() intent.DetectedIntent {
	return intent.DetectedIntent{Type: intent.Imperative, Subtype: intent.SubtypeStop, Confidence: 0.95}
}

func continueIntent() intent.DetectedIntent {
	return intent.DetectedIntent{Type: intent.Imperative, Subtype: intent.SubtypeContinue, Confidence: 0.85}
}

func TestS4ConflictWindowLastWins(t *testing.T) {
	r, events, clock := newTestRouter()
	fired := map[intent.Subtype]int{}
	r.RegisterHandler(intent.SubtypeStop, func(e Event) { fired[intent.SubtypeStop]++ })
	r.RegisterHandler(intent.SubtypeContinue, func(e Event) { fired[intent.SubtypeContinue]++ })

	r.HandleFinalIntent("u1", stopIntent())
	*clock = clock.Add(200 * time.Millisecond)
	r.HandleFinalIntent("u2", continueIntent())

	*clock = clock.Add(1500 * time.Millisecond) // 1500ms since Continue entered the pending slot -> window elapsed
	r.CheckConflictWindow()

	if fired[intent.SubtypeStop] != 0 {
		t.Errorf("Stop should have been superseded, not fired")
	}
	if fired[intent.SubtypeContinue] != 1 {
		t.Errorf("expected Continue to fire exactly once, got %d", fired[intent.SubtypeContinue])
	}
	nonDebounced := 0
	for _, e := range *events {
		if !e.WasDebounced {
			nonDebounced++
		}
	}
	if nonDebounced != 1 {
		t.Errorf("expected exactly one non-debounced action event, got %d", nonDebounced)
	}
}

func TestS2CooldownDebouncesSecondIdenticalIntent(t *testing.T) {
	r, events, clock := newTestRouter()
	fired := 0
	r.RegisterHandler(intent.SubtypeRepeat, func(e Event) { fired++ })

	repeat := intent.DetectedIntent{Type: intent.Imperative, Subtype: intent.SubtypeRepeat, Confidence: 0.90}
	r.HandleFinalIntent("u1", repeat)
	*clock = clock.Add(1500 * time.Millisecond)
	r.CheckConflictWindow()
	if fired != 1 {
		t.Fatalf("expected first Repeat to fire, got %d", fired)
	}

	*clock = clock.Add(1000 * time.Millisecond) // within 1500ms cooldown of the fire
	r.HandleFinalIntent("u2", repeat)
	r.CheckConflictWindow()

	if fired != 1 {
		t.Errorf("expected debounced second Repeat not to fire, got %d total fires", fired)
	}
	last := (*events)[len(*events)-1]
	if !last.WasDebounced {
		t.Error("expected last event to report was_debounced=true")
	}
}

func TestNonImperativeIntentIgnoredByRouter(t *testing.T) {
	r, events, _ := newTestRouter()
	r.HandleFinalIntent("u1", intent.DetectedIntent{Type: intent.Question, Subtype: intent.SubtypeDefinition})
	r.CheckConflictWindow()
	if len(*events) != 0 {
		t.Errorf("expected no action events for a non-imperative intent, got %d", len(*events))
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	r, events, clock := newTestRouter()
	r.RegisterHandler(intent.SubtypeStop, func(e Event) { panic("boom") })

	r.HandleFinalIntent("u1", stopIntent())
	*clock = clock.Add(1500 * time.Millisecond)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.Fatalf("panic should have been recovered inside the router, got %v", rec)
			}
		}()
		r.CheckConflictWindow()
	}()

	if len(*events) != 1 {
		t.Fatalf("expected the action event to still be published despite the panic, got %d", len(*events))
	}
}
