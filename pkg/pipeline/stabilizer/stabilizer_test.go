package stabilizer

import "testing"

func TestUpdateRequiresTwoHypothesesBeforePublishing(t *testing.T) {
	s := New(DefaultConfig())
	got := s.Update("What is a", nil)
	if got != "" {
		t.Fatalf("expected empty stable text after first hypothesis, got %q", got)
	}

	got = s.Update("What is a lock", nil)
	if got != "What is a" {
		t.Fatalf("expected %q, got %q", "What is a", got)
	}
}

func TestMonotonicStabilization(t *testing.T) {
	s := New(DefaultConfig())
	s.Update("What is a", nil)
	g1 := s.Update("What is a lock", nil)
	g2 := s.Update("What is a lock statement", nil)

	if len(g2) < len(g1) {
		t.Fatalf("stable text retracted: %q -> %q", g1, g2)
	}
	final := s.Commit("What is a lock statement used in C#?")
	if final != "What is a lock statement used in C#?" {
		t.Fatalf("unexpected commit result: %q", final)
	}
}

func TestEmptyHypothesisIgnored(t *testing.T) {
	s := New(DefaultConfig())
	s.Update("hello there", nil)
	s.Update("hello there friend", nil)
	before := s.Update("", nil)
	after := s.Update("", nil)
	if before != after {
		t.Fatalf("empty hypothesis should not change stable text: %q vs %q", before, after)
	}
}

func TestTrimsToWordBoundary(t *testing.T) {
	s := New(DefaultConfig())
	s.Update("hello wor", nil)
	got := s.Update("hello world", nil)
	if got != "hello" {
		t.Fatalf("expected trim to whole word boundary, got %q", got)
	}
}

func TestDoesNotTrimWhenNextCharIsSeparator(t *testing.T) {
	s := New(DefaultConfig())
	s.Update("hello", nil)
	got := s.Update("hello world", nil)
	if got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestConfidenceGateDropsLowConfidenceTail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.6
	cfg.RequireRepetitionForLowConfidence = true
	s := New(cfg)

	words := []WordConfidence{
		{Word: "hello", Confidence: 0.95},
		{Word: "world", Confidence: 0.2},
	}
	s.Update("hello world", words)
	got := s.Update("hello world today", words)
	if got != "hello" {
		t.Fatalf("expected low-confidence tail dropped, got %q", got)
	}
}

func TestConfidenceGateAllowsRepeatedLowConfidenceWord(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.6
	cfg.RequireRepetitionForLowConfidence = true
	s := New(cfg)

	words := []WordConfidence{
		{Word: "hello", Confidence: 0.95},
		{Word: "world", Confidence: 0.2},
	}
	s.Update("hello world", words)
	s.Update("hello world", words) // repeated -> count reaches 2
	got := s.Update("hello world today", words)
	if got != "hello world" {
		t.Fatalf("expected repeated low-confidence word kept, got %q", got)
	}
}

func TestCommitResolvesInFavorOfFinalSegment(t *testing.T) {
	s := New(DefaultConfig())
	s.Update("turn on the", nil)
	s.Update("turn on the lights please", nil)

	got := s.Commit("turn off the lights")
	if got != "turn off the lights" {
		t.Fatalf("expected commit to override window, got %q", got)
	}
}

func TestResetClearsState(t *testing.T) {
	s := New(DefaultConfig())
	s.Update("hello there", nil)
	s.Update("hello there friend", nil)
	s.Reset()
	got := s.Update("goodbye", nil)
	if got != "" {
		t.Fatalf("expected empty stable text after reset, got %q", got)
	}
}

func TestWindowSizeOneEmitsUnchangedOnlyAfterSecondHypothesis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 1
	s := New(cfg)

	got := s.Update("hi", nil)
	if got != "" {
		t.Fatalf("expected empty before second hypothesis, got %q", got)
	}
	got = s.Update("hi there", nil)
	if got == "" {
		t.Fatal("expected non-empty stable text after second hypothesis")
	}
}
