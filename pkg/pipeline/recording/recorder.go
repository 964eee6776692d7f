package recording

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/utterance-intent/pipeline/pkg/pipeline/action"
	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
	"github.com/utterance-intent/pipeline/pkg/pipeline/orchestrator"
	"github.com/utterance-intent/pipeline/pkg/pipeline/utterance"
)

// Logger matches the teacher's minimal structured-logging contract.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noOpLogger struct{}

func (noOpLogger) Debug(string, ...any) {}
func (noOpLogger) Info(string, ...any)  {}
func (noOpLogger) Warn(string, ...any)  {}
func (noOpLogger) Error(string, ...any) {}

// Recorder subscribes to all five of the pipeline's typed Publishers
// (covering the nine logical streams of spec §4.5) and appends one
// line-delimited JSON record per event to disk, flushing after every write
// so a crash loses at most the in-flight record.
type Recorder struct {
	cfg                  Config
	logger               Logger
	startedAt            time.Time

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool

	transcript strings.Builder
	spans      []asrFinalSpan
	startTimes map[string]time.Time

	wg sync.WaitGroup
}

// Config controls the recorder's metadata, capture configuration, and
// correlation tolerance.
type Config struct {
	SessionID             string
	Version               string
	DetectionMode         string
	AsrModel              string // ASR/STT model or provider name; omitted from the metadata when empty
	SampleRate            int
	Diarize               bool
	AudioSource           string
	TranscriptCorrelation time.Duration // default 2s, per spec §9 open question
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Version:               "1.0",
		SampleRate:            16000,
		AudioSource:           "microphone",
		TranscriptCorrelation: 2 * time.Second,
	}
}

// New opens path for writing and immediately appends the SessionMetadata
// record. On I/O failure the error is returned and no recording starts; per
// spec §7 a later write failure stops recording but does not stop the
// pipeline.
func New(path string, cfg Config, logger Logger) (*Recorder, error) {
	if logger == nil {
		logger = noOpLogger{}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recording: create %s: %w", path, err)
	}
	if cfg.TranscriptCorrelation <= 0 {
		cfg.TranscriptCorrelation = 2 * time.Second
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	r := &Recorder{
		cfg:        cfg,
		logger:     logger,
		startedAt:  time.Now(),
		file:       f,
		w:          bufio.NewWriter(f),
		startTimes: make(map[string]time.Time),
	}

	meta := SessionMetadata{
		SessionID:     cfg.SessionID,
		Version:       cfg.Version,
		RecordedAtUTC: r.startedAt.UTC().Format(time.RFC3339),
		Config: SessionConfig{
			DetectionMode: cfg.DetectionMode,
			AsrModel:      cfg.AsrModel,
			SampleRate:    cfg.SampleRate,
			Diarize:       cfg.Diarize,
			AudioSource:   cfg.AudioSource,
		},
	}
	if err := r.writeRecord(Record{Kind: KindSessionMetadata, OffsetMs: 0, Metadata: &meta}); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Attach subscribes to every stream on p and writes records until ctx is
// cancelled or p's Publishers are closed.
func (r *Recorder) Attach(ctx context.Context, p *orchestrator.Pipeline) {
	asrCh := p.AsrEvents.Subscribe()
	endCh := p.EndSignals.Subscribe()
	uttCh := p.UtteranceEvents.Subscribe()
	intentCh := p.IntentEvents.Subscribe()
	corrCh := p.Corrections.Subscribe()
	actionCh := p.Actions.Subscribe()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-asrCh:
				if !ok {
					return
				}
				r.recordAsrEvent(e)
			case t, ok := <-endCh:
				if !ok {
					return
				}
				r.recordUtteranceEndSignal(t)
			case ev, ok := <-uttCh:
				if !ok {
					return
				}
				r.recordUtteranceEvent(ev)
			case ev, ok := <-intentCh:
				if !ok {
					return
				}
				r.recordIntentEvent(ev)
			case ev, ok := <-corrCh:
				if !ok {
					return
				}
				r.recordCorrectionEvent(ev)
			case ev, ok := <-actionCh:
				if !ok {
					return
				}
				r.recordActionEvent(ev)
			}
		}
	}()
}

// Close stops accepting new records and closes the underlying file. It
// blocks until the Attach goroutine (if any) observes closed Publishers or
// its context is cancelled.
func (r *Recorder) Close() error {
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.w.Flush(); err != nil {
		return err
	}
	return r.file.Close()
}

func (r *Recorder) offsetMs() int64 {
	return time.Since(r.startedAt).Milliseconds()
}

func (r *Recorder) recordAsrEvent(e utterance.AsrEvent) {
	payload := AsrEventPayload{Text: e.Text, IsFinal: e.IsFinal, SpeakerID: e.SpeakerID, IsUtteranceEnd: e.IsUtteranceEnd}
	for _, w := range e.Words {
		payload.Words = append(payload.Words, WordHypothesisPayload{Word: w.Word, StartS: w.StartS, EndS: w.EndS, Confidence: w.Confidence, Speaker: w.Speaker})
	}

	if e.IsFinal && e.Text != "" {
		r.mu.Lock()
		charStart := r.transcript.Len()
		if charStart > 0 {
			r.transcript.WriteString(" ")
			charStart++
		}
		r.transcript.WriteString(e.Text)
		charEnd := r.transcript.Len()
		r.spans = append(r.spans, asrFinalSpan{at: e.ReceivedAt, offsetMs: r.offsetMs(), charStart: charStart, charEnd: charEnd})
		r.mu.Unlock()
	}

	r.append(Record{Kind: KindAsrEvent, OffsetMs: r.offsetMs(), Asr: &payload})
}

func (r *Recorder) recordUtteranceEndSignal(time.Time) {
	r.append(Record{Kind: KindUtteranceEndSignal, OffsetMs: r.offsetMs(), UtteranceEnd: &struct{}{}})
}

func (r *Recorder) recordUtteranceEvent(ev utterance.Event) {
	r.mu.Lock()
	r.startTimes[ev.ID] = ev.StartTime
	r.mu.Unlock()

	payload := UtteranceEventPayload{
		ID: ev.ID, Type: string(ev.Type), StableText: ev.StableText, RawText: ev.RawText,
		DurationMs: ev.Duration.Milliseconds(), CloseReason: string(ev.CloseReason), SpeakerID: ev.SpeakerID,
	}
	r.append(Record{Kind: KindUtteranceEvent, OffsetMs: r.offsetMs(), Utterance: &payload})
}

func (r *Recorder) recordIntentEvent(ev intent.Event) {
	payload := intentPayload(ev.UtteranceID, string(ev.Kind), ev.Intent)
	rec := Record{Kind: KindIntentEvent, OffsetMs: r.offsetMs(), Intent: &payload}

	r.mu.Lock()
	start, ok := r.startTimes[ev.UtteranceID]
	var region *asrFinalSpan
	if ok {
		region = r.findRegion(start)
	}
	transcript := r.transcript.String()
	r.mu.Unlock()

	if region != nil {
		cs, ce := correlate(transcript, *region, ev.Intent.SourceText, ev.Intent.OriginalText)
		rec.TranscriptCharStart = &cs
		rec.TranscriptCharEnd = &ce
	}
	r.append(rec)
}

func (r *Recorder) recordCorrectionEvent(ev intent.CorrectionEvent) {
	payload := IntentCorrectionPayload{UtteranceID: ev.UtteranceID, Kind: string(ev.Kind)}
	if ev.Previous != nil {
		p := intentPayload(ev.UtteranceID, "", *ev.Previous)
		payload.Previous = &p
	}
	if ev.Updated != nil {
		u := intentPayload(ev.UtteranceID, "", *ev.Updated)
		payload.Updated = &u
	}
	r.append(Record{Kind: KindIntentCorrectionEvent, OffsetMs: r.offsetMs(), Correction: &payload})
}

func (r *Recorder) recordActionEvent(ev action.Event) {
	payload := ActionEventPayload{UtteranceID: ev.UtteranceID, Subtype: string(ev.Subtype), WasDebounced: ev.WasDebounced}
	r.append(Record{Kind: KindActionEvent, OffsetMs: r.offsetMs(), Action: &payload})
}

func intentPayload(utteranceID, kind string, di intent.DetectedIntent) IntentEventPayload {
	return IntentEventPayload{
		UtteranceID: utteranceID, Kind: kind, Type: string(di.Type), Subtype: string(di.Subtype),
		Confidence: di.Confidence, SourceText: di.SourceText, OriginalText: di.OriginalText, Slots: di.Slots,
	}
}

// findRegion locates the widest char span of ASR-final segments whose
// timestamp falls within ±TranscriptCorrelation of the utterance start,
// caller holds r.mu.
func (r *Recorder) findRegion(uttStart time.Time) *asrFinalSpan {
	var region *asrFinalSpan
	for i := range r.spans {
		s := r.spans[i]
		d := s.at.Sub(uttStart)
		if d < 0 {
			d = -d
		}
		if d > r.cfg.TranscriptCorrelation {
			continue
		}
		if region == nil {
			region = &asrFinalSpan{at: s.at, charStart: s.charStart, charEnd: s.charEnd}
			continue
		}
		if s.charStart < region.charStart {
			region.charStart = s.charStart
		}
		if s.charEnd > region.charEnd {
			region.charEnd = s.charEnd
		}
	}
	return region
}

// correlate searches transcript[region.charStart:region.charEnd] for
// sourceText then originalText, returning absolute offsets on a match or the
// region bounds themselves on a miss, per spec §4.6.
func correlate(transcript string, region asrFinalSpan, sourceText, originalText string) (int, int) {
	if region.charStart < 0 || region.charEnd > len(transcript) || region.charStart >= region.charEnd {
		return region.charStart, region.charEnd
	}
	slice := transcript[region.charStart:region.charEnd]
	for _, candidate := range []string{sourceText, originalText} {
		if candidate == "" {
			continue
		}
		if idx := strings.Index(slice, candidate); idx != -1 {
			return region.charStart + idx, region.charStart + idx + len(candidate)
		}
	}
	return region.charStart, region.charEnd
}

func (r *Recorder) append(rec Record) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		r.logger.Debug("recording: dropping record after close", "kind", rec.Kind, "err", ErrRecordingClosed)
		return
	}
	if err := r.writeRecord(rec); err != nil {
		r.logger.Error("recording write failed, stopping recorder", "err", err)
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
	}
}

func (r *Recorder) writeRecord(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	b, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("recording: marshal %s record: %w", rec.Kind, err)
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	if _, err := r.w.WriteString("\n"); err != nil {
		return err
	}
	return r.w.Flush()
}
