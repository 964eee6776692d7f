package intent

import "testing"

func TestPreprocessStripsFillerWords(t *testing.T) {
	got := preprocess("um so uh what is a closure")
	want := "so what is a closure"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPreprocessCollapsesRepeatedWords(t *testing.T) {
	got := preprocess("no no no no that's not right")
	want := "no no that's not right"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPreprocessAppliesDomainTerms(t *testing.T) {
	got := preprocess("what is a span tea in sea sharp")
	want := "what is a Span<T> in C#"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPreprocessAppliesDomainTermMidSentence(t *testing.T) {
	got := preprocess("remember to configure await that call")
	want := "remember to ConfigureAwait that call"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
