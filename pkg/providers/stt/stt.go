// Package stt adapts the teacher's batch transcription clients into ASR
// sources for cmd/live-agent. None of these providers stream interim
// hypotheses the way the wire format in spec §6 assumes (Deepgram's own
// real-time API does, but these clients call its batch REST endpoint) — each
// call transcribes one VAD-segmented utterance and is surfaced to the
// pipeline as a single IsFinal, IsUtteranceEnd AsrEvent. True streaming
// partial hypotheses are out of scope for this adapter layer.
package stt

import "context"

// Language is a BCP-47-ish hint passed to providers that support it; empty
// means auto-detect.
type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
)

// Provider transcribes one complete utterance's raw PCM.
type Provider interface {
	Transcribe(ctx context.Context, audioPCM []byte, lang Language) (string, error)
	Name() string
}
