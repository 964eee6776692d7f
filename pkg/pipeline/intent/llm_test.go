package intent

import (
	"context"
	"testing"
	"time"
)

type fakeBackend struct {
	lastText    string
	lastContext string
	results     []DetectedIntent
	err         error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) DetectIntents(ctx context.Context, text string, previousContext string) ([]DetectedIntent, error) {
	f.lastText = text
	f.lastContext = previousContext
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestLLMStrategyTriggersOnQuestionMark(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{
		{Type: Question, Subtype: SubtypeDefinition, Confidence: 0.9, SourceText: "what is a closure?", OriginalText: "what is a closure?"},
	}}
	cfg := LLMConfig{ConfidenceThreshold: 0.5, TriggerOnQuestionMark: true}
	l := NewLLMStrategy(backend, cfg)

	di, ok := l.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "what is a closure?"})
	if !ok {
		t.Fatalf("expected a detection")
	}
	if di.Type != Question || di.Subtype != SubtypeDefinition {
		t.Fatalf("expected Question/Definition, got %+v", di)
	}
	if backend.lastText != "what is a closure?" {
		t.Errorf("expected backend to receive the buffered text, got %q", backend.lastText)
	}
}

func TestLLMStrategyDoesNotTriggerWithoutCondition(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{{Type: Statement, Confidence: 0.9}}}
	cfg := LLMConfig{ConfidenceThreshold: 0.5, TriggerOnQuestionMark: true, BufferMaxChars: 800}
	l := NewLLMStrategy(backend, cfg)

	_, ok := l.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "just a statement"})
	if ok {
		t.Fatalf("expected no detection without a trigger condition")
	}
	if backend.lastText != "" {
		t.Errorf("backend should not have been called")
	}
}

func TestLLMStrategyBufferOverflowBypassesRateLimit(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{
		{Type: Statement, Confidence: 0.9, SourceText: "aaaaaaaaaa", OriginalText: "aaaaaaaaaa"},
	}}
	cfg := LLMConfig{ConfidenceThreshold: 0.5, BufferMaxChars: 5, RateLimit: time.Hour}
	l := NewLLMStrategy(backend, cfg)

	di, ok := l.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "aaaaaaaaaa"})
	if !ok || di == nil {
		t.Fatalf("expected buffer overflow to bypass the rate limit and trigger a call")
	}
}

func TestLLMStrategyDropsBelowConfidenceThreshold(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{
		{Type: Question, Confidence: 0.3, SourceText: "is this real?", OriginalText: "is this real?"},
	}}
	cfg := LLMConfig{ConfidenceThreshold: 0.7, TriggerOnQuestionMark: true}
	l := NewLLMStrategy(backend, cfg)

	_, ok := l.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "is this real?"})
	if ok {
		t.Fatalf("expected low-confidence result to be dropped")
	}
}

func TestLLMStrategyBackendErrorYieldsNoDetection(t *testing.T) {
	backend := &fakeBackend{err: context.DeadlineExceeded}
	cfg := LLMConfig{ConfidenceThreshold: 0.5, TriggerOnQuestionMark: true}
	l := NewLLMStrategy(backend, cfg)

	_, ok := l.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "what now?"})
	if ok {
		t.Fatalf("expected no detection on backend error")
	}
}

func TestLLMStrategySignalPauseTriggersOnNextCall(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{
		{Type: Statement, Confidence: 0.9, SourceText: "trailing off", OriginalText: "trailing off"},
	}}
	cfg := LLMConfig{ConfidenceThreshold: 0.5, TriggerOnPause: true}
	l := NewLLMStrategy(backend, cfg)

	l.SignalPause()
	di, ok := l.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "trailing off"})
	if !ok || di == nil {
		t.Fatalf("expected the pending pause to trigger the next call")
	}
}

func TestLLMStrategyQueuesUnmatchedResultsAsCorrections(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{
		{Type: Statement, Confidence: 0.9, SourceText: "u1 text", OriginalText: "u1 text"},
		{Type: Imperative, Subtype: SubtypeStop, Confidence: 0.9, SourceText: "stray", OriginalText: "stray"},
	}}
	cfg := LLMConfig{ConfidenceThreshold: 0.5, TriggerOnQuestionMark: false, BufferMaxChars: 1}
	l := NewLLMStrategy(backend, cfg)

	l.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "u1 text"})

	select {
	case ev := <-l.Corrections():
		if ev.Kind != Added || ev.Updated == nil || ev.Updated.Subtype != SubtypeStop {
			t.Fatalf("expected the stray result queued as an Added correction, got %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected an extra correction to be queued")
	}
}
