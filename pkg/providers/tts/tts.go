// Package tts adapts the teacher's streaming websocket TTS client for
// speaking ActionRouter confirmations (spec §4.4's action_triggered events)
// back to the user in cmd/live-agent.
package tts

import "context"

// Voice selects a synthesis voice.
type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceM1 Voice = "M1"
)

// Language is a BCP-47-ish hint.
type Language string

const LanguageEn Language = "en"

// Provider synthesizes a short confirmation phrase.
type Provider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error
	Name() string
}
