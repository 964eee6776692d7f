package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
)

func TestAnthropicDetectIntents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req struct {
			System string `json:"system"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.System != systemPrompt {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}{
			Content: []struct {
				Text string `json:"text"`
			}{
				{Text: `[{"type":"question","subtype":"definition","confidence":0.9,"slots":{}}]`},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := &Anthropic{apiKey: "test-key", url: server.URL, model: "claude-3"}

	intents, err := l.DetectIntents(context.Background(), "what is a goroutine", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(intents) != 1 || intents[0].Type != intent.Question || intents[0].Subtype != intent.SubtypeDefinition {
		t.Fatalf("unexpected intents: %+v", intents)
	}
	if l.Name() != "anthropic-llm" {
		t.Errorf("expected anthropic-llm, got %s", l.Name())
	}
}
