// Package action maps final imperative intents to registered handlers,
// applying per-subtype cooldowns and a last-wins conflict window. It is the
// one pipeline component built for concurrent access (spec §5): intents can
// arrive from the synchronous heuristic path and the asynchronous LLM
// correction path at the same time.
package action

import (
	"sync"
	"time"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
)

// Handler is invoked when a pending action's conflict window elapses without
// being superseded. Panics are recovered and logged by the router; they
// never propagate.
type Handler func(Event)

// Event is published for every routing decision, fired or debounced.
type Event struct {
	UtteranceID  string
	Subtype      intent.Subtype
	Intent       intent.DetectedIntent
	Timestamp    time.Time
	WasDebounced bool
}

// Logger matches the teacher's minimal structured-logging contract
// (pkg/orchestrator/types.go's Logger interface).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoOpLogger discards everything, matching the teacher's default.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// Config carries the debounce table and conflict window duration.
type Config struct {
	ConflictWindow time.Duration
	Cooldowns      map[intent.Subtype]time.Duration
}

// DefaultConfig matches the spec's documented debounce table.
func DefaultConfig() Config {
	return Config{
		ConflictWindow: 1500 * time.Millisecond,
		Cooldowns: map[intent.Subtype]time.Duration{
			intent.SubtypeStop:      0,
			intent.SubtypeRepeat:    1500 * time.Millisecond,
			intent.SubtypeContinue:  1500 * time.Millisecond,
			intent.SubtypeStartOver: 1500 * time.Millisecond,
			intent.SubtypeGenerate:  5000 * time.Millisecond,
		},
	}
}

type pendingAction struct {
	utteranceID string
	subtype     intent.Subtype
	intent      intent.DetectedIntent
	enteredAt   time.Time
}

// Router owns the handler registry, last-fired timestamps, and the single
// pending-conflict slot described in spec §4.4.
type Router struct {
	cfg    Config
	logger Logger
	now    func() time.Time

	mu         sync.Mutex
	handlers   map[intent.Subtype]Handler
	lastFired  map[intent.Subtype]time.Time
	pending    *pendingAction

	onEvent func(Event)
}

// New builds a Router. onEvent is invoked for every ActionEvent (fired or
// debounced); it may be nil.
func New(cfg Config, logger Logger, onEvent func(Event)) *Router {
	if logger == nil {
		logger = NoOpLogger{}
	}
	if cfg.Cooldowns == nil {
		cfg.Cooldowns = DefaultConfig().Cooldowns
	}
	return &Router{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		handlers:  make(map[intent.Subtype]Handler),
		lastFired: make(map[intent.Subtype]time.Time),
		onEvent:   onEvent,
	}
}

// RegisterHandler stores handler for subtype, replacing any prior one.
func (r *Router) RegisterHandler(subtype intent.Subtype, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[subtype] = handler
}

// HandleFinalIntent routes a final, action-eligible intent. Only Imperative
// intents are subtypes the debounce table governs; other types are ignored.
func (r *Router) HandleFinalIntent(utteranceID string, di intent.DetectedIntent) {
	if di.Type != intent.Imperative {
		return
	}
	now := r.now()

	r.mu.Lock()
	cooldown := r.cfg.Cooldowns[di.Subtype]
	last, seen := r.lastFired[di.Subtype]
	if seen && now.Sub(last) < cooldown {
		r.mu.Unlock()
		r.publish(Event{UtteranceID: utteranceID, Subtype: di.Subtype, Intent: di, Timestamp: now, WasDebounced: true})
		return
	}

	r.pending = &pendingAction{utteranceID: utteranceID, subtype: di.Subtype, intent: di, enteredAt: now}
	r.mu.Unlock()
}

// CheckConflictWindow is invoked by the orchestrator's periodic tick; it
// fires the pending action once ConflictWindow has elapsed since it entered
// the pending slot, unless a newer intent has since replaced it.
func (r *Router) CheckConflictWindow() {
	now := r.now()

	r.mu.Lock()
	p := r.pending
	if p == nil || now.Sub(p.enteredAt) < r.cfg.ConflictWindow {
		r.mu.Unlock()
		return
	}
	r.pending = nil
	r.lastFired[p.subtype] = now
	handler := r.handlers[p.subtype]
	r.mu.Unlock()

	r.invoke(handler, Event{UtteranceID: p.utteranceID, Subtype: p.subtype, Intent: p.intent, Timestamp: now})
}

func (r *Router) invoke(handler Handler, ev Event) {
	r.safeCall(handler, ev)
	r.publish(ev)
}

// safeCall recovers a handler panic so it never reaches the caller; the
// router stays functional and the action event is still published.
func (r *Router) safeCall(handler Handler, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("action handler panicked", "subtype", ev.Subtype, "recover", rec)
		}
	}()
	if handler == nil {
		r.logger.Warn("dropping action", "subtype", ev.Subtype, "err", ErrUnknownSubtype)
		return
	}
	handler(ev)
}

func (r *Router) publish(ev Event) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}
