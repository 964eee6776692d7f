// Package utterance segments a stream of ASR events into discrete
// utterances and emits Open/Update/Final events. It owns a single
// *stabilizer.Stabilizer for the currently active utterance, matching the
// teacher's single-owned-resource style (ManagedStream owns one VADProvider
// per stream; Builder owns one Stabilizer per utterance).
package utterance

import (
	"fmt"
	"strings"
	"time"

	"github.com/utterance-intent/pipeline/pkg/pipeline/stabilizer"
)

// CloseReason identifies which close condition ended an utterance.
type CloseReason string

const (
	CloseDeepgramSignal      CloseReason = "DeepgramSignal"
	CloseTerminalPunctuation CloseReason = "TerminalPunctuation"
	CloseSilenceGap          CloseReason = "SilenceGap"
	CloseMaxDuration         CloseReason = "MaxDuration"
	CloseMaxLength           CloseReason = "MaxLength"
	CloseManual              CloseReason = "Manual"
)

// EventType discriminates the three events a Builder ever emits for a given
// utterance id: exactly one Open, zero or more Update, exactly one Final.
type EventType string

const (
	Open   EventType = "Open"
	Update EventType = "Update"
	Final  EventType = "Final"
)

// WordHypothesis mirrors one entry of AsrEvent.Words.
type WordHypothesis struct {
	Word       string
	StartS     float64
	EndS       float64
	Confidence float64
	Speaker    string
}

// AsrEvent is the pipeline's normalized ASR input, per spec §3.
type AsrEvent struct {
	Text            string
	IsFinal         bool
	SpeakerID       string
	Words           []WordHypothesis
	IsUtteranceEnd  bool
	ReceivedAt      time.Time
}

// Event is emitted on Open/Update/Final for a given utterance.
type Event struct {
	ID                     string
	Type                   EventType
	StartTime              time.Time
	Timestamp              time.Time
	StableText             string
	RawText                string
	Duration               time.Duration
	CloseReason            CloseReason // only set on Final
	SpeakerID              string
	CommittedAsrTimestamps []time.Time // only set on Final
}

// Config controls timing thresholds, per spec §6 configuration surface.
type Config struct {
	SilenceGapThreshold       time.Duration
	PunctuationPauseThreshold time.Duration
	MaxUtteranceDuration      time.Duration
	MaxUtteranceLength        int
	Stabilizer                stabilizer.Config
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		SilenceGapThreshold:       750 * time.Millisecond,
		PunctuationPauseThreshold: 300 * time.Millisecond,
		MaxUtteranceDuration:      12 * time.Second,
		MaxUtteranceLength:        500,
		Stabilizer:                stabilizer.DefaultConfig(),
	}
}

// state is the internal UtteranceState of spec §3, owned exclusively by the
// Builder while an utterance is active.
type state struct {
	id                      string
	startTime               time.Time
	lastActivityTime        time.Time
	committedText           string
	rawText                 string
	stableText              string
	hasTerminalPunctuation  bool
	terminalPunctuationTime time.Time
	speakerID               string
	committedAsrTimestamps  []time.Time
}

// Builder owns at most one active utterance at a time and drives its state
// machine from incoming ASR events and periodic ticks.
type Builder struct {
	cfg        Config
	stabilizer *stabilizer.Stabilizer
	active     *state
	counter    int

	onOpen   func(Event)
	onUpdate func(Event)
	onFinal  func(Event)

	now func() time.Time // overridable for tests
}

// New creates a Builder that invokes the given sinks on Open/Update/Final,
// per the Design Notes' "explicit sink registration at pipeline
// construction" in place of an inheritance-based event-handler hierarchy.
func New(cfg Config, onOpen, onUpdate, onFinal func(Event)) *Builder {
	return &Builder{
		cfg:        cfg,
		stabilizer: stabilizer.New(cfg.Stabilizer),
		onOpen:     onOpen,
		onUpdate:   onUpdate,
		onFinal:    onFinal,
		now:        time.Now,
	}
}

// IsActive reports whether an utterance is currently open.
func (b *Builder) IsActive() bool {
	return b.active != nil
}

// ProcessAsrEvent feeds one ASR event through the state machine. Empty text
// on a non-utterance-end event is ignored per the error taxonomy's
// "transient input noise" policy — except an is_utterance_end signal with
// empty text still closes an active utterance (spec §8 boundary behavior).
func (b *Builder) ProcessAsrEvent(e AsrEvent) {
	now := b.now()

	if e.Text == "" && !e.IsUtteranceEnd {
		return
	}

	if b.active == nil {
		if e.Text == "" {
			return // nothing to open on an empty, non-terminating event
		}
		b.open(e, now)
	}

	b.update(e, now)

	if e.IsUtteranceEnd {
		b.close(CloseDeepgramSignal, now)
		return
	}

	b.checkConditionsAfterEvent(now)
}

// SignalUtteranceEnd forces close reason DeepgramSignal if an utterance is
// active, mirroring an externally provided end-of-utterance boundary signal.
func (b *Builder) SignalUtteranceEnd() {
	if b.active == nil {
		return
	}
	b.close(CloseDeepgramSignal, b.now())
}

// ForceClose forces close reason Manual if an utterance is active.
func (b *Builder) ForceClose() {
	if b.active == nil {
		return
	}
	b.close(CloseManual, b.now())
}

// CheckTimeouts is invoked by the orchestrator's periodic tick (≤100ms) and
// evaluates the timer-based close conditions (terminal punctuation pause,
// silence gap, max duration, max length) that don't require a new ASR event.
func (b *Builder) CheckTimeouts() {
	if b.active == nil {
		return
	}
	b.checkConditionsAfterEvent(b.now())
}

func (b *Builder) open(e AsrEvent, now time.Time) {
	b.counter++
	b.stabilizer.Reset()
	b.active = &state{
		id:               formatID(b.counter),
		startTime:        now,
		lastActivityTime: now,
		speakerID:        e.SpeakerID,
	}
	b.emit(b.onOpen, Open, CloseReason(""), now)
}

func (b *Builder) update(e AsrEvent, now time.Time) {
	st := b.active
	if st == nil {
		return
	}
	st.lastActivityTime = now

	if e.Text != "" {
		if e.IsFinal {
			segment := strings.TrimSpace(e.Text)
			if st.committedText == "" {
				st.committedText = segment
			} else {
				st.committedText = st.committedText + " " + segment
			}
			st.rawText = st.committedText
			st.committedAsrTimestamps = append(st.committedAsrTimestamps, e.ReceivedAt)
			st.stableText = b.stabilizer.Commit(segment)
		} else {
			base := st.committedText
			if base != "" {
				st.rawText = strings.TrimRight(base, " ") + " " + strings.TrimSpace(e.Text)
			} else {
				st.rawText = e.Text
			}
			words := make([]stabilizer.WordConfidence, 0, len(e.Words))
			for _, w := range e.Words {
				words = append(words, stabilizer.WordConfidence{Word: w.Word, Confidence: w.Confidence})
			}
			st.stableText = b.stabilizer.Update(e.Text, words)
		}
	}

	trimmed := strings.TrimSpace(st.rawText)
	endsWithTerminal := hasTerminalPunctuation(trimmed)
	if endsWithTerminal && !st.hasTerminalPunctuation {
		st.terminalPunctuationTime = now
	} else if !endsWithTerminal {
		st.terminalPunctuationTime = time.Time{}
	}
	st.hasTerminalPunctuation = endsWithTerminal

	// A committed final segment advances committed/raw text silently; it is
	// not surfaced as an interim Update (those are for hypothesis preview
	// only) unless a subsequent non-final hypothesis arrives for the next
	// segment.
	if !e.IsUtteranceEnd && !e.IsFinal {
		b.emit(b.onUpdate, Update, CloseReason(""), now)
	}
}

// checkConditionsAfterEvent evaluates close conditions 2-5 in priority
// order (condition 1, is_utterance_end, is handled inline by the caller).
func (b *Builder) checkConditionsAfterEvent(now time.Time) {
	st := b.active
	if st == nil {
		return
	}

	if st.hasTerminalPunctuation && !st.terminalPunctuationTime.IsZero() &&
		now.Sub(st.terminalPunctuationTime) >= b.cfg.PunctuationPauseThreshold {
		b.close(CloseTerminalPunctuation, now)
		return
	}
	if now.Sub(st.lastActivityTime) >= b.cfg.SilenceGapThreshold {
		b.close(CloseSilenceGap, now)
		return
	}
	if now.Sub(st.startTime) >= b.cfg.MaxUtteranceDuration {
		b.close(CloseMaxDuration, now)
		return
	}
	if len(st.rawText) >= b.cfg.MaxUtteranceLength {
		b.close(CloseMaxLength, now)
		return
	}
}

func (b *Builder) close(reason CloseReason, now time.Time) {
	st := b.active
	if st == nil {
		return
	}
	b.active = nil

	// Final prefers the Stabilizer's last published text; if it never
	// published anything (e.g. a single committed segment with no interim
	// hypotheses), fall back to rawText.
	stableText := st.stableText
	if stableText == "" {
		stableText = st.rawText
	}
	b.stabilizer.Reset()

	ev := Event{
		ID:                     st.id,
		Type:                   Final,
		StartTime:              st.startTime,
		Timestamp:              now,
		StableText:             stableText,
		RawText:                st.rawText,
		Duration:               now.Sub(st.startTime),
		CloseReason:            reason,
		SpeakerID:              st.speakerID,
		CommittedAsrTimestamps: st.committedAsrTimestamps,
	}
	if b.onFinal != nil {
		b.onFinal(ev)
	}
}

func (b *Builder) emit(sink func(Event), typ EventType, reason CloseReason, now time.Time) {
	st := b.active
	if st == nil || sink == nil {
		return
	}
	sink(Event{
		ID:          st.id,
		Type:        typ,
		StartTime:   st.startTime,
		Timestamp:   now,
		StableText:  st.stableText,
		RawText:     st.rawText,
		Duration:    now.Sub(st.startTime),
		CloseReason: reason,
		SpeakerID:   st.speakerID,
	})
}

func hasTerminalPunctuation(s string) bool {
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return last == '.' || last == '?' || last == '!'
}

func formatID(counter int) string {
	return fmt.Sprintf("utt_%04d", counter)
}
