// Package llm adapts the teacher's raw-HTTP chat-completion clients
// (anthropic.go, openai.go, google.go) from single-turn conversational
// Complete(messages) calls into intent.Backend.DetectIntents(text,
// previousContext) calls: same request/response plumbing, a different
// system prompt and response schema.
package llm

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
)

// chatMessage is a provider-agnostic role/content message shape; the
// backends in this package build their request bodies directly and do not
// use it.
type chatMessage struct {
	Role    string
	Content string
}

const systemPrompt = `You classify a single spoken utterance against an ongoing conversation.
Respond with a JSON array of zero or more intents, each an object with exactly these fields:
"type" (one of "imperative", "question", "statement"),
"subtype" (for imperative: stop, repeat, continue, start_over, generate; for question: definition, how_to, compare, troubleshoot; omit for statement),
"confidence" (0 to 1),
"source_text" (the clause of the utterance this intent comes from, rewritten to be self-contained: resolve any pronouns or ellipsis against the prior context so it reads the same with no context at all),
"original_text" (the verbatim substring of the utterance that clause corresponds to),
"slots" (object of string to string, may be empty).
Return only the JSON array, no prose.`

// userPrompt joins the sliding context window with the utterance under
// classification, per spec §4.3.2's "previous N utterances" context.
func userPrompt(text, previousContext string) string {
	if previousContext == "" {
		return text
	}
	return "Prior context: " + previousContext + "\nUtterance: " + text
}

type llmIntent struct {
	Type         string            `json:"type"`
	Subtype      string            `json:"subtype"`
	Confidence   float64           `json:"confidence"`
	SourceText   string            `json:"source_text"`
	OriginalText string            `json:"original_text"`
	Slots        map[string]string `json:"slots"`
}

// parseIntentResponse extracts the JSON array a backend returned, tolerating
// providers that wrap it in prose despite the system prompt's instruction.
// fallbackText stands in for source_text/original_text only when a provider
// omits them outright; per spec §4.3.2 the LLM call itself is expected to
// return a self-contained, pronoun-resolved source_text and a verbatim
// original_text for each intent, not the full buffered request text.
func parseIntentResponse(raw, fallbackText string) ([]intent.DetectedIntent, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("llm: no JSON array found in response")
	}

	var parsed []llmIntent
	if err := sonic.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("llm: parse response: %w", err)
	}

	out := make([]intent.DetectedIntent, 0, len(parsed))
	for _, p := range parsed {
		sourceText := p.SourceText
		if sourceText == "" {
			sourceText = fallbackText
		}
		originalText := p.OriginalText
		if originalText == "" {
			originalText = fallbackText
		}
		out = append(out, intent.DetectedIntent{
			Type:         intent.Type(p.Type),
			Subtype:      intent.Subtype(p.Subtype),
			Confidence:   p.Confidence,
			SourceText:   sourceText,
			OriginalText: originalText,
			Slots:        p.Slots,
		})
	}
	return out, nil
}
