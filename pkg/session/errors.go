package session

import "errors"

// Sentinel errors for the synchronous provider calls a Bridge makes outside
// the pipeline's own event path (spec §4.7), adapted from the teacher's
// pkg/orchestrator/errors.go taxonomy for its STT/TTS turn.
var (
	ErrTranscribeFailed = errors.New("session: transcription failed")
	ErrSynthesizeFailed = errors.New("session: synthesis failed")
)
