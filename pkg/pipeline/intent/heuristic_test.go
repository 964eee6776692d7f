package intent

import (
	"context"
	"testing"
)

func detectFinal(t *testing.T, text string) *DetectedIntent {
	t.Helper()
	h := NewHeuristicStrategy()
	di, ok := h.DetectFinal(context.Background(), UtteranceInput{UtteranceID: "u1", Text: text})
	if !ok {
		t.Fatalf("expected a result for %q", text)
	}
	return di
}

func TestHeuristicStopHighestPriority(t *testing.T) {
	di := detectFinal(t, "stop")
	if di.Type != Imperative || di.Subtype != SubtypeStop {
		t.Fatalf("expected Imperative/Stop, got %+v", di)
	}
	if di.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", di.Confidence)
	}
}

func TestHeuristicRepeatWithNumber(t *testing.T) {
	di := detectFinal(t, "please repeat number 3")
	if di.Type != Imperative || di.Subtype != SubtypeRepeat {
		t.Fatalf("expected Imperative/Repeat, got %+v", di)
	}
	if di.Confidence != 0.90 {
		t.Errorf("expected 0.90, got %f", di.Confidence)
	}
	if di.Slots["count"] != "3" || di.Slots["reference"] != "number 3" {
		t.Errorf("unexpected slots: %+v", di.Slots)
	}
}

func TestHeuristicRepeatLast(t *testing.T) {
	di := detectFinal(t, "repeat the last one")
	if di.Subtype != SubtypeRepeat || di.Slots["reference"] != "last" {
		t.Fatalf("expected Repeat/last, got %+v", di)
	}
}

func TestHeuristicRepeatGeneralPoliteBoostsConfidence(t *testing.T) {
	polite := detectFinal(t, "could you repeat that again")
	bare := detectFinal(t, "what did you say")
	if polite.Confidence != 0.85 {
		t.Errorf("expected polite confidence 0.85, got %f", polite.Confidence)
	}
	if bare.Confidence != 0.80 {
		t.Errorf("expected bare confidence 0.80, got %f", bare.Confidence)
	}
}

func TestHeuristicContinue(t *testing.T) {
	di := detectFinal(t, "go on")
	if di.Type != Imperative || di.Subtype != SubtypeContinue {
		t.Fatalf("expected Imperative/Continue, got %+v", di)
	}
}

func TestHeuristicStartOver(t *testing.T) {
	di := detectFinal(t, "let's start over")
	if di.Subtype != SubtypeStartOver {
		t.Fatalf("expected StartOver, got %+v", di)
	}
}

func TestHeuristicGenerateWithSlots(t *testing.T) {
	di := detectFinal(t, "generate 5 questions about C# generics")
	if di.Subtype != SubtypeGenerate {
		t.Fatalf("expected Generate, got %+v", di)
	}
	if di.Slots["count"] != "5" {
		t.Errorf("expected count slot 5, got %+v", di.Slots)
	}
	if di.Slots["topic"] == "" {
		t.Errorf("expected topic slot, got %+v", di.Slots)
	}
}

func TestHeuristicQuestionCompareSubtypePrecedence(t *testing.T) {
	di := detectFinal(t, "what is the difference between a struct and a class?")
	if di.Type != Question || di.Subtype != SubtypeCompare {
		t.Fatalf("expected Question/Compare, got %+v", di)
	}
}

func TestHeuristicQuestionHowTo(t *testing.T) {
	di := detectFinal(t, "how do I configure dependency injection?")
	if di.Type != Question || di.Subtype != SubtypeHowTo {
		t.Fatalf("expected Question/HowTo, got %+v", di)
	}
}

func TestHeuristicQuestionTroubleshoot(t *testing.T) {
	di := detectFinal(t, "why isn't this working, I get an error?")
	if di.Type != Question || di.Subtype != SubtypeTroubleshoot {
		t.Fatalf("expected Question/Troubleshoot, got %+v", di)
	}
}

func TestHeuristicQuestionDefinitionDefault(t *testing.T) {
	di := detectFinal(t, "what is a closure?")
	if di.Type != Question || di.Subtype != SubtypeDefinition {
		t.Fatalf("expected Question/Definition, got %+v", di)
	}
	if di.Slots["topic"] != "closure" {
		t.Errorf("expected topic 'closure', got %+v", di.Slots)
	}
}

func TestHeuristicStatementFallbackOnFinal(t *testing.T) {
	di := detectFinal(t, "the weather is nice today")
	if di.Type != Statement {
		t.Fatalf("expected Statement fallback, got %+v", di)
	}
	if di.Confidence != 0.4 {
		t.Errorf("expected confidence 0.4, got %f", di.Confidence)
	}
}

func TestHeuristicCandidateSuppressesLowConfidence(t *testing.T) {
	h := NewHeuristicStrategy()
	_, ok := h.DetectCandidate(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "the weather is nice today"})
	if ok {
		t.Fatal("expected no candidate below 0.3 confidence")
	}
}

func TestHeuristicCandidateEmitsAboveThreshold(t *testing.T) {
	h := NewHeuristicStrategy()
	di, ok := h.DetectCandidate(context.Background(), UtteranceInput{UtteranceID: "u1", Text: "stop"})
	if !ok || di.Type != Imperative {
		t.Fatalf("expected Imperative candidate, got %+v ok=%v", di, ok)
	}
}
