// Package intent classifies utterance text into a small taxonomy
// (Imperative/Question/Statement) via pluggable strategies, mirroring the
// teacher's provider-interface pattern (pkg/orchestrator/types.go's
// STTProvider/LLMProvider) applied to classification instead of transport.
package intent

import (
	"context"
	"time"
)

// Type is the top-level classification.
type Type string

const (
	Imperative Type = "Imperative"
	Question   Type = "Question"
	Statement  Type = "Statement"
)

// Subtype refines Type. Imperative subtypes: Stop, Repeat, Continue,
// StartOver, Generate. Question subtypes: Definition, HowTo, Compare,
// Troubleshoot. Statement has no subtype.
type Subtype string

const (
	SubtypeStop       Subtype = "Stop"
	SubtypeRepeat     Subtype = "Repeat"
	SubtypeContinue   Subtype = "Continue"
	SubtypeStartOver  Subtype = "StartOver"
	SubtypeGenerate   Subtype = "Generate"

	SubtypeDefinition   Subtype = "Definition"
	SubtypeHowTo        Subtype = "HowTo"
	SubtypeCompare      Subtype = "Compare"
	SubtypeTroubleshoot Subtype = "Troubleshoot"
)

// DetectedIntent is one classification result, whether from the heuristic
// rules or an LLM backend.
type DetectedIntent struct {
	Type         Type
	Subtype      Subtype // empty for Statement
	Confidence   float64
	SourceText   string // pronoun-resolved / self-contained (LLM) or the matched text (heuristic)
	OriginalText string // verbatim utterance text
	Slots        map[string]string
}

// Kind discriminates a candidate (preview, never triggers actions) from a
// final (committed, action-eligible) classification.
type Kind string

const (
	Candidate Kind = "Candidate"
	Final     Kind = "Final"
)

// Event wraps a DetectedIntent with the utterance it was produced for.
type Event struct {
	UtteranceID string
	Kind        Kind
	Intent      DetectedIntent
	Timestamp   time.Time
}

// CorrectionKind names how an LLM result relates to a previously emitted
// heuristic final for the same utterance.
type CorrectionKind string

const (
	Confirmed   CorrectionKind = "Confirmed"
	TypeChanged CorrectionKind = "TypeChanged"
	Added       CorrectionKind = "Added"
	Removed     CorrectionKind = "Removed"
)

// CorrectionEvent is emitted strictly later in wall-clock time than the
// intent it modifies, per the ordering guarantee in spec §5.
type CorrectionEvent struct {
	UtteranceID string
	Kind        CorrectionKind
	Previous    *DetectedIntent // nil for an Added correction with no earlier intent
	Updated     *DetectedIntent // nil when Kind == Removed
	Timestamp   time.Time
}

// UtteranceInput is the text a strategy classifies against, for either a
// candidate (interim stable_text) or final (closed utterance) request.
type UtteranceInput struct {
	UtteranceID string
	Text        string
	ReceivedAt  time.Time
}

// Strategy is the pluggable classification backend the orchestrator drives.
// DetectCandidate is called on utterance_update, DetectFinal on
// utterance_final. Corrections streams asynchronous re-classifications; a
// strategy with no corrections of its own returns a non-nil channel that is
// never written to.
//
// Implementations must never block process_asr_event's single-threaded
// dispatch: DetectCandidate and the synchronous half of DetectFinal run
// inline in the pipeline's cooperative event loop.
type Strategy interface {
	DetectCandidate(ctx context.Context, in UtteranceInput) (*DetectedIntent, bool)
	DetectFinal(ctx context.Context, in UtteranceInput) (*DetectedIntent, bool)
	// SignalPause notifies the strategy of an utterance-end boundary, used
	// by the LLM strategy's trigger-on-pause rule.
	SignalPause()
	Corrections() <-chan CorrectionEvent
	Close()
}
