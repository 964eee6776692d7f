package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
)

// Google implements intent.Backend against the Gemini generateContent API.
type Google struct {
	apiKey string
	url    string
	model  string
}

func NewGoogle(apiKey string, model string) *Google {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Google{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
	}
}

type googlePart struct {
	Text string `json:"text"`
}

type googleMessage struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

func (l *Google) DetectIntents(ctx context.Context, text, previousContext string) ([]intent.DetectedIntent, error) {
	contents := []googleMessage{
		{Role: "user", Parts: []googlePart{{Text: systemPrompt}}},
		{Role: "user", Parts: []googlePart{{Text: userPrompt(text, previousContext)}}},
	}

	payload := map[string]interface{}{"contents": contents}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url+"?key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("google llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []googlePart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from google llm")
	}

	return parseIntentResponse(result.Candidates[0].Content.Parts[0].Text, text)
}

func (l *Google) Name() string { return "google-llm" }
