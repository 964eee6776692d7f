package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
)

// OpenAI implements intent.Backend against the chat completions API. Groq
// exposes the same wire format, so NewGroq below reuses this type with a
// different base URL rather than duplicating the request/response plumbing.
type OpenAI struct {
	apiKey string
	url    string
	model  string
}

func NewOpenAI(apiKey string, model string) *OpenAI {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAI{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

// NewGroq builds an OpenAI-compatible backend pointed at Groq's endpoint.
func NewGroq(apiKey string, model string) *OpenAI {
	if model == "" {
		model = "llama-3.1-70b-versatile"
	}
	return &OpenAI{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
	}
}

func (l *OpenAI) DetectIntents(ctx context.Context, text, previousContext string) ([]intent.DetectedIntent, error) {
	payload := map[string]interface{}{
		"model": l.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(text, previousContext)},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("openai llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from openai")
	}

	return parseIntentResponse(result.Choices[0].Message.Content, text)
}

func (l *OpenAI) Name() string {
	if l.url != "https://api.openai.com/v1/chat/completions" {
		return "groq-llm"
	}
	return "openai-llm"
}
