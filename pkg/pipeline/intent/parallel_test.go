package intent

import (
	"context"
	"testing"
	"time"
)

func waitForCorrection(t *testing.T, ch <-chan CorrectionEvent) CorrectionEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for a correction")
		return CorrectionEvent{}
	}
}

func TestParallelStrategyConfirmsAgreement(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{
		{Type: Imperative, Subtype: SubtypeStop, Confidence: 0.9, SourceText: "stop", OriginalText: "stop"},
	}}
	llm := NewLLMStrategy(backend, LLMConfig{ConfidenceThreshold: 0.5, TriggerOnQuestionMark: false, BufferMaxChars: 0})
	p := NewParallelStrategy(llm)

	di, ok := p.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "stop"})
	if !ok || di.Subtype != SubtypeStop {
		t.Fatalf("expected heuristic to classify Stop synchronously, got %+v ok=%v", di, ok)
	}

	ev := waitForCorrection(t, p.Corrections())
	if ev.Kind != Confirmed {
		t.Fatalf("expected Confirmed when heuristic and LLM agree, got %v", ev.Kind)
	}
}

func TestParallelStrategyTypeChangedOnDisagreement(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{
		{Type: Imperative, Subtype: SubtypeContinue, Confidence: 0.9, SourceText: "stop", OriginalText: "stop"},
	}}
	llm := NewLLMStrategy(backend, LLMConfig{ConfidenceThreshold: 0.5, BufferMaxChars: 0})
	p := NewParallelStrategy(llm)

	p.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "stop"})

	ev := waitForCorrection(t, p.Corrections())
	if ev.Kind != TypeChanged {
		t.Fatalf("expected TypeChanged on subtype disagreement, got %v", ev.Kind)
	}
}

func TestParallelStrategyAddedWhenLLMUpgradesStatement(t *testing.T) {
	backend := &fakeBackend{results: []DetectedIntent{
		{Type: Question, Subtype: SubtypeDefinition, Confidence: 0.9, SourceText: "tell me the time", OriginalText: "tell me the time"},
	}}
	llm := NewLLMStrategy(backend, LLMConfig{ConfidenceThreshold: 0.5, BufferMaxChars: 0})
	p := NewParallelStrategy(llm)

	di, ok := p.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "tell me the time"})
	if !ok || di.Type != Statement {
		t.Fatalf("expected heuristic fallback to Statement, got %+v ok=%v", di, ok)
	}

	ev := waitForCorrection(t, p.Corrections())
	if ev.Kind != Added {
		t.Fatalf("expected Added when LLM upgrades a Statement default, got %v", ev.Kind)
	}
}
