package orchestrator

import "errors"

var (
	// ErrUtteranceNotActive is reported when a caller-driven boundary signal
	// (SignalUtteranceEnd, ForceClose) is a no-op because no utterance is
	// currently open.
	ErrUtteranceNotActive = errors.New("no utterance currently active")

	// ErrDetectorBackend wraps a failure that the configured intent.Strategy
	// reports through the errorSink hook. The strategies in package intent do
	// not implement that hook, so their backend failures never carry it.
	ErrDetectorBackend = errors.New("intent detector backend failed")
)
