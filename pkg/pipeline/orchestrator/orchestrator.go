// Package orchestrator wires the Stabilizer (owned by utterance.Builder),
// UtteranceBuilder, IntentDetector strategy, and ActionRouter into the
// single cooperative event loop described in spec §5, and exposes the nine
// named event streams external subscribers (UI, SessionRecorder) consume.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/utterance-intent/pipeline/pkg/pipeline/action"
	"github.com/utterance-intent/pipeline/pkg/pipeline/events"
	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
	"github.com/utterance-intent/pipeline/pkg/pipeline/utterance"
)

// Config bundles the per-component configuration the orchestrator owns.
type Config struct {
	Utterance   utterance.Config
	Action      action.Config
	TickInterval time.Duration // drives check_timeouts / check_conflict_window, ≤100ms
}

// DefaultConfig matches each component's documented defaults.
func DefaultConfig() Config {
	return Config{
		Utterance:    utterance.DefaultConfig(),
		Action:       action.DefaultConfig(),
		TickInterval: 50 * time.Millisecond,
	}
}

// Pipeline owns the four components and republishes their output on typed
// Publishers. A logical stream from spec §4.5 maps onto these five typed
// Publishers via each payload's own Kind/Type discriminator field:
//
//	asr_partial, asr_final         -> AsrEvents (utterance.AsrEvent, IsFinal)
//	utterance_open/update/final    -> UtteranceEvents (utterance.Event, Type)
//	intent_candidate/final         -> IntentEvents (intent.Event, Kind)
//	intent_corrected               -> Corrections (intent.CorrectionEvent)
//	action_triggered                -> Actions (action.Event)
//
// Diagnostics carries failures alongside these (detector backend errors,
// a Stop drain timeout, a boundary signal with no utterance active) without
// ever interrupting the streams above.
type Pipeline struct {
	cfg      Config
	builder  *utterance.Builder
	detector intent.Strategy
	router   *action.Router
	logger   Logger

	AsrEvents       *events.Publisher[utterance.AsrEvent]
	EndSignals      *events.Publisher[time.Time]
	UtteranceEvents *events.Publisher[utterance.Event]
	IntentEvents    *events.Publisher[intent.Event]
	Corrections     *events.Publisher[intent.CorrectionEvent]
	Actions         *events.Publisher[action.Event]

	// Diagnostics carries every failure named in the error taxonomy as a
	// typed event, in addition to the Logger call made at the same site —
	// a caller that only watches logs still sees every failure.
	Diagnostics *events.Publisher[DiagnosticEvent]

	mu        sync.Mutex
	stopOnce  sync.Once
	runCtx    context.Context // rooted in Start; cancelled by Stop
	activeCtx context.Context // the ctx of whoever is currently driving the builder, read by its callbacks
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// DiagnosticEvent reports a non-fatal failure encountered while running the
// pipeline (detector backend errors, a drain timeout on Stop, ...). It never
// stops the event path — see §7's "nothing raises through the event path".
type DiagnosticEvent struct {
	Level     string // "warn" or "error", matching the Logger call made alongside it
	Message   string
	Err       error
	Timestamp time.Time
}

// errorSink is an optional hook for an intent.Strategy that can fail
// asynchronously: New hands such a strategy a callback that surfaces each
// failure as a DiagnosticEvent. None of the strategies in package intent
// implements it; LLMStrategy treats a Backend error as "no detection" and
// nothing is published on Diagnostics for it.
type errorSink interface {
	SetErrorSink(func(error))
}

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

// New wires a Pipeline. detector may be a HeuristicStrategy, LLMStrategy, or
// ParallelStrategy — any intent.Strategy implementation.
func New(cfg Config, detector intent.Strategy, logger Logger) *Pipeline {
	if logger == nil {
		logger = noOpLogger{}
	}
	p := &Pipeline{
		cfg:             cfg,
		detector:        detector,
		logger:          logger,
		runCtx:          context.Background(),
		activeCtx:       context.Background(),
		AsrEvents:       events.NewPublisher[utterance.AsrEvent](),
		EndSignals:      events.NewPublisher[time.Time](),
		UtteranceEvents: events.NewPublisher[utterance.Event](),
		IntentEvents:    events.NewPublisher[intent.Event](),
		Corrections:     events.NewPublisher[intent.CorrectionEvent](),
		Actions:         events.NewPublisher[action.Event](),
		Diagnostics:     events.NewPublisher[DiagnosticEvent](),
	}
	p.router = action.New(cfg.Action, nil, func(e action.Event) { p.Actions.Publish(e) })
	p.builder = utterance.New(cfg.Utterance,
		func(ev utterance.Event) { p.onUtteranceOpen(ev) },
		func(ev utterance.Event) { p.onUtteranceUpdate(ev) },
		func(ev utterance.Event) { p.onUtteranceFinal(ev) },
	)
	if sink, ok := detector.(errorSink); ok {
		sink.SetErrorSink(func(err error) {
			p.emitDiagnostic("error", "intent detector backend failed", fmt.Errorf("%w: %v", ErrDetectorBackend, err))
		})
	}
	return p
}

func (p *Pipeline) emitDiagnostic(level, message string, err error) {
	ev := DiagnosticEvent{Level: level, Message: message, Err: err, Timestamp: time.Now()}
	if level == "error" {
		p.logger.Error(message, "err", err)
	} else {
		p.logger.Warn(message, "err", err)
	}
	p.Diagnostics.Publish(ev)
}

// RegisterActionHandler stores handler for subtype on the router.
func (p *Pipeline) RegisterActionHandler(subtype intent.Subtype, handler action.Handler) {
	p.router.RegisterHandler(subtype, handler)
}

// Start launches the periodic ticker driving check_timeouts and
// check_conflict_window; it must be called once before feeding ASR events.
// The derived context it roots is also used for every detector call made
// from the builder's callbacks, so Stop cancels an in-flight backend call
// instead of only joining the ticker and correction-forwarder goroutines.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.runCtx = ctx
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.tickLoop(ctx)
	p.StartCorrectionForwarder(ctx)
}

func (p *Pipeline) tickLoop(ctx context.Context) {
	defer p.wg.Done()
	interval := p.cfg.TickInterval
	if interval <= 0 || interval > 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			p.activeCtx = ctx
			p.builder.CheckTimeouts()
			p.mu.Unlock()
			p.router.CheckConflictWindow()
		}
	}
}

// Stop cancels the ticker and drains in-flight work within a bounded window.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		done := make(chan struct{})
		go func() { p.wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			p.emitDiagnostic("warn", "pipeline stop drain window exceeded", nil)
		}
		p.AsrEvents.Close()
		p.EndSignals.Close()
		p.UtteranceEvents.Close()
		p.IntentEvents.Close()
		p.Corrections.Close()
		p.Actions.Close()
		p.Diagnostics.Close()
		p.detector.Close()
	})
}

// ProcessAsrEvent feeds one ASR event through Stabilizer -> UtteranceBuilder
// -> IntentDetector -> ActionRouter, synchronously, per spec §5's
// cooperative single-threaded scheduling model. ctx is the context any
// detector call the builder's callbacks trigger as a direct result of this
// event will run under.
func (p *Pipeline) ProcessAsrEvent(ctx context.Context, e utterance.AsrEvent) {
	if e.Text == "" && !e.IsUtteranceEnd {
		return
	}

	p.AsrEvents.Publish(e)

	p.mu.Lock()
	p.activeCtx = ctx
	p.builder.ProcessAsrEvent(e)
	p.mu.Unlock()
}

// SignalUtteranceEnd forwards to the builder and notifies the detector's
// pause trigger (spec §4.3.2 trigger 2).
func (p *Pipeline) SignalUtteranceEnd() {
	now := time.Now()
	p.EndSignals.Publish(now)
	p.mu.Lock()
	p.activeCtx = p.runCtx
	active := p.builder.IsActive()
	if active {
		p.builder.SignalUtteranceEnd()
	}
	p.mu.Unlock()
	if !active {
		p.emitDiagnostic("warn", "utterance end signalled with none active", ErrUtteranceNotActive)
	}
	p.detector.SignalPause()
}

// ForceClose forwards to the builder.
func (p *Pipeline) ForceClose() {
	p.mu.Lock()
	p.activeCtx = p.runCtx
	active := p.builder.IsActive()
	if active {
		p.builder.ForceClose()
	}
	p.mu.Unlock()
	if !active {
		p.emitDiagnostic("warn", "force close requested with no utterance active", ErrUtteranceNotActive)
	}
}

func (p *Pipeline) onUtteranceOpen(ev utterance.Event) {
	p.UtteranceEvents.Publish(ev)
}

func (p *Pipeline) onUtteranceUpdate(ev utterance.Event) {
	p.UtteranceEvents.Publish(ev)

	di, ok := p.detector.DetectCandidate(p.activeCtx, intent.UtteranceInput{UtteranceID: ev.ID, Text: ev.StableText, ReceivedAt: ev.Timestamp})
	if !ok {
		return
	}
	p.IntentEvents.Publish(intent.Event{UtteranceID: ev.ID, Kind: intent.Candidate, Intent: *di, Timestamp: ev.Timestamp})
}

func (p *Pipeline) onUtteranceFinal(ev utterance.Event) {
	p.UtteranceEvents.Publish(ev)

	text := ev.StableText
	if text == "" {
		text = ev.RawText
	}

	di, ok := p.detector.DetectFinal(p.activeCtx, intent.UtteranceInput{UtteranceID: ev.ID, Text: text, ReceivedAt: ev.Timestamp})
	if !ok {
		return
	}
	p.IntentEvents.Publish(intent.Event{UtteranceID: ev.ID, Kind: intent.Final, Intent: *di, Timestamp: ev.Timestamp})
	p.router.HandleFinalIntent(ev.ID, *di)
}

// StartCorrectionForwarder runs a background loop forwarding every
// correction the detector ever produces onto p.Corrections, for strategies
// whose corrections arrive well after the triggering utterance_final call
// returns (e.g. ParallelStrategy's async LLM reconciliation).
func (p *Pipeline) StartCorrectionForwarder(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ch := p.detector.Corrections()
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-ch:
				if !ok {
					return
				}
				p.Corrections.Publish(c)
			}
		}
	}()
}
