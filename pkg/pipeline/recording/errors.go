package recording

import "errors"

var (
	// ErrRecordingClosed is logged when an event arrives after a write
	// failure (or Close) has stopped the recorder; the event itself is
	// dropped, never raised back through the pipeline (spec §7).
	ErrRecordingClosed = errors.New("recording: recorder closed, dropping record")

	// ErrPlaybackCancelled wraps a Replay context cancellation that
	// interrupted a pending inter-event delay or a paused wait.
	ErrPlaybackCancelled = errors.New("recording: playback cancelled")
)
