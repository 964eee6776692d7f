package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
)

func TestOpenAIDetectIntents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"[{\"type\":\"imperative\",\"subtype\":\"stop\",\"confidence\":0.95,\"slots\":{}}]"}}]}`))
	}))
	defer server.Close()

	l := &OpenAI{apiKey: "test-key", url: server.URL, model: "gpt-4o"}

	intents, err := l.DetectIntents(context.Background(), "stop", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(intents) != 1 || intents[0].Type != intent.Imperative || intents[0].Subtype != intent.SubtypeStop {
		t.Fatalf("unexpected intents: %+v", intents)
	}
	if l.Name() != "openai-llm" {
		t.Errorf("expected openai-llm, got %s", l.Name())
	}
}
