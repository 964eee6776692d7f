package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
)

// Anthropic implements intent.Backend against Claude's messages API.
type Anthropic struct {
	apiKey string
	url    string
	model  string
}

func NewAnthropic(apiKey string, model string) *Anthropic {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &Anthropic{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

func (l *Anthropic) DetectIntents(ctx context.Context, text, previousContext string) ([]intent.DetectedIntent, error) {
	payload := map[string]interface{}{
		"model":      l.model,
		"system":     systemPrompt,
		"max_tokens": 1024,
		"messages": []map[string]string{
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
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("anthropic llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("no content returned from anthropic")
	}

	return parseIntentResponse(result.Content[0].Text, text)
}

func (l *Anthropic) Name() string { return "anthropic-llm" }
