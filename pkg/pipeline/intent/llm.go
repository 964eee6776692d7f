package intent

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Backend is the pluggable LLM detector backend contract (spec §6). Failures
// return an empty list; cancellation propagates through ctx. Concrete
// adapters live under pkg/providers/llm, wrapping the teacher's raw-HTTP
// chat-completion clients.
type Backend interface {
	Name() string
	DetectIntents(ctx context.Context, text string, previousContext string) ([]DetectedIntent, error)
}

// LLMConfig mirrors the configuration surface's LLM keys (spec §6).
type LLMConfig struct {
	Model                 string
	ConfidenceThreshold    float64
	RateLimit              time.Duration
	BufferMaxChars         int
	TriggerOnQuestionMark  bool
	TriggerOnPause         bool
	TriggerTimeout         time.Duration
	DeduplicationWindow    time.Duration
	ContextWindowChars     int
	EnablePreprocessing    bool
}

// DefaultLLMConfig matches the spec's documented defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		ConfidenceThreshold:   0.7,
		RateLimit:             2000 * time.Millisecond,
		BufferMaxChars:        800,
		TriggerOnQuestionMark: true,
		TriggerOnPause:        true,
		TriggerTimeout:        3000 * time.Millisecond,
		DeduplicationWindow:   30000 * time.Millisecond,
		ContextWindowChars:    1500,
		EnablePreprocessing:   true,
	}
}

type pendingUtterance struct {
	id         string
	text       string
	isFinal    bool
	receivedAt time.Time
}

type contextEntry struct {
	id   string
	text string
}

// LLMStrategy implements the sliding-context-window strategy of spec §4.3.2.
// Backend calls run inline with the triggering DetectFinal/DetectCandidate
// invocation (the teacher's providers are likewise called synchronously from
// orchestrator.go; true off-thread dispatch is left to ParallelStrategy,
// which wraps this type's call behind a goroutine).
type LLMStrategy struct {
	backend Backend
	cfg     LLMConfig
	now     func() time.Time

	mu            sync.Mutex
	unprocessed   []pendingUtterance
	bufferChars   int
	contextWindow []contextEntry
	contextChars  int
	lastCallAt    time.Time
	pausePending  bool
	dedup         *dedupTracker

	// extra holds results from the same backend call that belonged to an
	// utterance other than the one DetectFinal/DetectCandidate was asked
	// about; surfaced as Added corrections since they arrive out of band
	// from the orchestrator's per-utterance request/response shape.
	extra chan CorrectionEvent
}

// NewLLMStrategy wraps backend with the sliding-window trigger/dedup logic.
func NewLLMStrategy(backend Backend, cfg LLMConfig) *LLMStrategy {
	return &LLMStrategy{
		backend: backend,
		cfg:     cfg,
		now:     time.Now,
		dedup:   newDedupTracker(cfg.DeduplicationWindow),
		extra:   make(chan CorrectionEvent, 64),
	}
}

func (l *LLMStrategy) DetectCandidate(ctx context.Context, in UtteranceInput) (*DetectedIntent, bool) {
	return l.process(ctx, in, false)
}

func (l *LLMStrategy) DetectFinal(ctx context.Context, in UtteranceInput) (*DetectedIntent, bool) {
	return l.process(ctx, in, true)
}

func (l *LLMStrategy) process(ctx context.Context, in UtteranceInput, isFinal bool) (*DetectedIntent, bool) {
	l.mu.Lock()
	now := l.now()
	l.upsertUnprocessed(in, isFinal, now)

	triggered, bypassRateLimit := l.evaluateTriggers(in.Text, now)
	if !triggered {
		l.mu.Unlock()
		return nil, false
	}
	if !bypassRateLimit && now.Sub(l.lastCallAt) < l.cfg.RateLimit {
		l.mu.Unlock()
		return nil, false
	}

	text, previousContext := l.buildRequest()
	l.lastCallAt = now
	l.mu.Unlock()

	results, err := l.backend.DetectIntents(ctx, text, previousContext)
	if err != nil {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.postProcess(results, now)
	l.advanceWindow(now)

	var matched *DetectedIntent
	for i := range kept {
		if matched == nil && kept[i].OriginalText == in.Text {
			matched = &kept[i]
			continue
		}
		l.queueExtra(kept[i], now)
	}
	if matched == nil {
		return nil, false
	}
	return matched, true
}

func (l *LLMStrategy) upsertUnprocessed(in UtteranceInput, isFinal bool, now time.Time) {
	for i := range l.unprocessed {
		if l.unprocessed[i].id == in.UtteranceID {
			l.bufferChars += len(in.Text) - len(l.unprocessed[i].text)
			l.unprocessed[i].text = in.Text
			l.unprocessed[i].isFinal = isFinal
			l.unprocessed[i].receivedAt = now
			return
		}
	}
	l.unprocessed = append(l.unprocessed, pendingUtterance{id: in.UtteranceID, text: in.Text, isFinal: isFinal, receivedAt: now})
	l.bufferChars += len(in.Text)
}

// evaluateTriggers implements the four trigger conditions; trigger 3 (buffer
// overflow) reports bypassRateLimit=true.
func (l *LLMStrategy) evaluateTriggers(newText string, now time.Time) (triggered bool, bypassRateLimit bool) {
	if l.cfg.TriggerOnQuestionMark && strings.Contains(newText, "?") {
		triggered = true
	}
	if l.cfg.TriggerOnPause && l.pausePending {
		triggered = true
		l.pausePending = false
	}
	if l.bufferChars > l.cfg.BufferMaxChars {
		return true, true
	}
	if len(l.unprocessed) > 0 {
		oldest := l.unprocessed[0].receivedAt
		if l.cfg.TriggerTimeout > 0 && now.Sub(oldest) >= l.cfg.TriggerTimeout {
			triggered = true
		}
	}
	return triggered, false
}

// SignalPause marks the next trigger evaluation as pause-triggered.
func (l *LLMStrategy) SignalPause() {
	l.mu.Lock()
	l.pausePending = true
	l.mu.Unlock()
}

func (l *LLMStrategy) buildRequest() (text string, previousContext string) {
	var sb strings.Builder
	for i, u := range l.unprocessed {
		if i > 0 {
			sb.WriteString("\n")
		}
		t := u.text
		if l.cfg.EnablePreprocessing {
			t = preprocess(t)
		}
		sb.WriteString(t)
	}

	var cb strings.Builder
	for i, c := range l.contextWindow {
		if i > 0 {
			cb.WriteString("\n")
		}
		cb.WriteString(c.text)
	}
	return sb.String(), cb.String()
}

func (l *LLMStrategy) postProcess(results []DetectedIntent, now time.Time) []DetectedIntent {
	kept := make([]DetectedIntent, 0, len(results))
	for _, r := range results {
		if r.Confidence < l.cfg.ConfidenceThreshold {
			continue
		}
		fp := fingerprint(r.SourceText)
		if l.dedup.checkAndRecord(fp, now) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// advanceWindow moves unprocessed into the context window, FIFO-evicting
// oldest entries until the char bound is respected.
func (l *LLMStrategy) advanceWindow(now time.Time) {
	for _, u := range l.unprocessed {
		l.contextWindow = append(l.contextWindow, contextEntry{id: u.id, text: u.text})
		l.contextChars += len(u.text)
	}
	l.unprocessed = nil
	l.bufferChars = 0

	for l.contextChars > l.cfg.ContextWindowChars && len(l.contextWindow) > 0 {
		l.contextChars -= len(l.contextWindow[0].text)
		l.contextWindow = l.contextWindow[1:]
	}
}

func (l *LLMStrategy) queueExtra(di DetectedIntent, now time.Time) {
	ev := CorrectionEvent{Kind: Added, Updated: &di, Timestamp: now}
	select {
	case l.extra <- ev:
	default:
	}
}

func (l *LLMStrategy) Corrections() <-chan CorrectionEvent { return l.extra }

func (l *LLMStrategy) Close() {}
