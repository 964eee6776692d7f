// Package recording implements the session recorder/player of spec §4.6: a
// line-delimited, tagged-union JSON log of every pipeline event, replayable
// into a fresh pipeline to compare detector behavior across versions.
//
// The tagged union is modeled as one Record struct carrying a Kind
// discriminator and exactly one populated payload field, per the design
// notes' guidance to implement "explicit sum types and a discriminator
// field; reader and writer share a single enumeration of variants" in place
// of runtime-type-based polymorphic serialization.
package recording

import "time"

// Kind discriminates a Record's payload, per spec §6's file format.
type Kind string

const (
	KindSessionMetadata       Kind = "SessionMetadata"
	KindAsrEvent              Kind = "AsrEvent"
	KindUtteranceEndSignal    Kind = "UtteranceEndSignal"
	KindUtteranceEvent        Kind = "UtteranceEvent"
	KindIntentEvent           Kind = "IntentEvent"
	KindIntentCorrectionEvent Kind = "IntentCorrectionEvent"
	KindActionEvent           Kind = "ActionEvent"
)

// SessionMetadata is always the first record in a recording file.
type SessionMetadata struct {
	SessionID     string        `json:"sessionId"`
	Version       string        `json:"version"`
	RecordedAtUTC string        `json:"recordedAtUtc"`
	Config        SessionConfig `json:"config"`
}

// SessionConfig captures the capture/detection configuration in effect for
// the recorded session, per spec §3's SessionMetadata.config.
type SessionConfig struct {
	DetectionMode string `json:"detectionMode"`
	AsrModel      string `json:"asrModel,omitempty"`
	SampleRate    int    `json:"sampleRate"`
	Diarize       bool   `json:"diarize"`
	AudioSource   string `json:"audioSource"`
}

// WordHypothesisPayload mirrors utterance.WordHypothesis for serialization.
type WordHypothesisPayload struct {
	Word       string  `json:"word"`
	StartS     float64 `json:"startS"`
	EndS       float64 `json:"endS"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// AsrEventPayload mirrors utterance.AsrEvent.
type AsrEventPayload struct {
	Text           string                  `json:"text"`
	IsFinal        bool                    `json:"isFinal"`
	SpeakerID      string                  `json:"speakerId,omitempty"`
	Words          []WordHypothesisPayload `json:"words,omitempty"`
	IsUtteranceEnd bool                    `json:"isUtteranceEnd"`
}

// UtteranceEventPayload mirrors utterance.Event.
type UtteranceEventPayload struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	StableText  string   `json:"stableText"`
	RawText     string   `json:"rawText"`
	DurationMs  int64    `json:"durationMs"`
	CloseReason string   `json:"closeReason,omitempty"`
	SpeakerID   string   `json:"speakerId,omitempty"`
}

// IntentEventPayload mirrors intent.Event.
type IntentEventPayload struct {
	UtteranceID  string            `json:"utteranceId"`
	Kind         string            `json:"kind"`
	Type         string            `json:"type"`
	Subtype      string            `json:"subtype,omitempty"`
	Confidence   float64           `json:"confidence"`
	SourceText   string            `json:"sourceText"`
	OriginalText string            `json:"originalText"`
	Slots        map[string]string `json:"slots,omitempty"`
}

// IntentCorrectionPayload mirrors intent.CorrectionEvent.
type IntentCorrectionPayload struct {
	UtteranceID string              `json:"utteranceId"`
	Kind        string              `json:"kind"`
	Previous    *IntentEventPayload `json:"previous,omitempty"`
	Updated     *IntentEventPayload `json:"updated,omitempty"`
}

// ActionEventPayload mirrors action.Event.
type ActionEventPayload struct {
	UtteranceID  string  `json:"utteranceId"`
	Subtype      string  `json:"subtype"`
	WasDebounced bool    `json:"wasDebounced"`
}

// Record is one line of the recording file.
type Record struct {
	Kind     Kind `json:"kind"`
	OffsetMs int64 `json:"offsetMs"`

	Metadata     *SessionMetadata          `json:"metadata,omitempty"`
	Asr          *AsrEventPayload          `json:"asr,omitempty"`
	UtteranceEnd *struct{}                 `json:"utteranceEnd,omitempty"`
	Utterance    *UtteranceEventPayload    `json:"utterance,omitempty"`
	Intent       *IntentEventPayload       `json:"intent,omitempty"`
	Correction   *IntentCorrectionPayload  `json:"correction,omitempty"`
	Action       *ActionEventPayload       `json:"action,omitempty"`

	// TranscriptCharStart/End annotate IntentEvent records once the
	// recorder has correlated source_text/original_text back to the
	// running transcript (spec §4.6).
	TranscriptCharStart *int `json:"transcriptCharStart,omitempty"`
	TranscriptCharEnd   *int `json:"transcriptCharEnd,omitempty"`
}

// asrFinalSpan is one entry of the in-memory ASR-final segment index used
// to correlate intent records back to transcript positions.
type asrFinalSpan struct {
	at         time.Time
	offsetMs   int64
	charStart  int
	charEnd    int
}
