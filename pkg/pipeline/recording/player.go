package recording

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/utterance-intent/pipeline/pkg/pipeline/orchestrator"
	"github.com/utterance-intent/pipeline/pkg/pipeline/utterance"
)

// Player loads a recording file and replays only its input records
// (AsrEvent, UtteranceEndSignal) into a fresh Pipeline, honoring the
// original inter-event delays. Output records (utterance/intent/action) are
// skipped — the target pipeline regenerates them, which is how detector
// changes get measured across a replay.
type Player struct {
	logger       Logger
	Metadata     SessionMetadata
	records      []Record
	SkippedLines int

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
	complete chan struct{}
}

// Load reads path into memory. Unparsable lines are skipped with a warning
// and counted in SkippedLines; a missing SessionMetadata first line is
// tolerated and defaults are applied.
func Load(path string, logger Logger) (*Player, error) {
	if logger == nil {
		logger = noOpLogger{}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recording: open %s: %w", path, err)
	}
	defer f.Close()

	p := &Player{logger: logger, Metadata: DefaultConfig().toMetadata(), complete: make(chan struct{})}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := sonic.Unmarshal(line, &rec); err != nil {
			logger.Warn("recording: skipping unparsable line", "err", err)
			p.SkippedLines++
			continue
		}
		if first {
			first = false
			if rec.Kind == KindSessionMetadata && rec.Metadata != nil {
				p.Metadata = *rec.Metadata
				continue
			}
			logger.Warn("recording: missing SessionMetadata first line, using defaults")
		}
		switch rec.Kind {
		case KindAsrEvent, KindUtteranceEndSignal:
			p.records = append(p.records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("recording: scan %s: %w", path, err)
	}
	return p, nil
}

func (cfg Config) toMetadata() SessionMetadata {
	return SessionMetadata{
		SessionID: cfg.SessionID,
		Version:   cfg.Version,
		Config: SessionConfig{
			DetectionMode: cfg.DetectionMode,
			AsrModel:      cfg.AsrModel,
			SampleRate:    cfg.SampleRate,
			Diarize:       cfg.Diarize,
			AudioSource:   cfg.AudioSource,
		},
	}
}

// Pause interrupts the current inter-event delay; replay resumes from where
// it left off once Resume is called.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resumeCh = make(chan struct{})
	}
}

// Resume releases a paused replay.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resumeCh)
	}
}

// Complete signals end-of-file; it is closed when Replay has fed every loaded
// record, and stays open when Replay returns an error.
func (p *Player) Complete() <-chan struct{} { return p.complete }

// Replay feeds the loaded input records into target, pacing them by the
// original offset_ms deltas. Cancellation via ctx aborts pending delays
// immediately and returns an error wrapping ErrPlaybackCancelled.
func (p *Player) Replay(ctx context.Context, target *orchestrator.Pipeline) error {
	var prevOffset int64
	for _, rec := range p.records {
		delay := time.Duration(rec.OffsetMs-prevOffset) * time.Millisecond
		prevOffset = rec.OffsetMs

		if err := p.waitDelay(ctx, delay); err != nil {
			return err
		}

		switch rec.Kind {
		case KindAsrEvent:
			if rec.Asr == nil {
				continue
			}
			target.ProcessAsrEvent(ctx, toAsrEvent(*rec.Asr))
		case KindUtteranceEndSignal:
			target.SignalUtteranceEnd()
		}
	}
	close(p.complete)
	return nil
}

func toAsrEvent(payload AsrEventPayload) utterance.AsrEvent {
	words := make([]utterance.WordHypothesis, 0, len(payload.Words))
	for _, w := range payload.Words {
		words = append(words, utterance.WordHypothesis{Word: w.Word, StartS: w.StartS, EndS: w.EndS, Confidence: w.Confidence, Speaker: w.Speaker})
	}
	return utterance.AsrEvent{
		Text: payload.Text, IsFinal: payload.IsFinal, SpeakerID: payload.SpeakerID,
		Words: words, IsUtteranceEnd: payload.IsUtteranceEnd, ReceivedAt: time.Now(),
	}
}

const delayPollInterval = 20 * time.Millisecond

func (p *Player) waitDelay(ctx context.Context, d time.Duration) error {
	remaining := d
	for remaining > 0 {
		if p.isPaused() {
			if err := p.waitResume(ctx); err != nil {
				return err
			}
			continue
		}
		step := delayPollInterval
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrPlaybackCancelled, ctx.Err())
		case <-time.After(step):
			remaining -= step
		}
	}
	return nil
}

func (p *Player) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) waitResume(ctx context.Context) error {
	p.mu.Lock()
	ch := p.resumeCh
	p.mu.Unlock()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrPlaybackCancelled, ctx.Err())
	case <-ch:
		return nil
	}
}
