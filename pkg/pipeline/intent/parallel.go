package intent

import (
	"context"
	"sync"
	"time"
)

// ParallelStrategy runs the heuristic synchronously (emitting immediately,
// action-eligible) and the LLM backend asynchronously, reconciling the two
// via Corrections once the LLM call returns. Modeled on the teacher's
// internalInterrupt pattern (managed_stream.go): the synchronous path never
// waits on the async one.
type ParallelStrategy struct {
	heuristic *HeuristicStrategy
	llm       *LLMStrategy
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]DetectedIntent

	corrections chan CorrectionEvent
}

// NewParallelStrategy combines a fresh heuristic strategy with llm.
func NewParallelStrategy(llm *LLMStrategy) *ParallelStrategy {
	return &ParallelStrategy{
		heuristic:   NewHeuristicStrategy(),
		llm:         llm,
		now:         time.Now,
		lastSeen:    make(map[string]DetectedIntent),
		corrections: make(chan CorrectionEvent, 64),
	}
}

func (p *ParallelStrategy) DetectCandidate(ctx context.Context, in UtteranceInput) (*DetectedIntent, bool) {
	return p.heuristic.DetectCandidate(ctx, in)
}

func (p *ParallelStrategy) DetectFinal(ctx context.Context, in UtteranceInput) (*DetectedIntent, bool) {
	di, ok := p.heuristic.DetectFinal(ctx, in)
	if ok {
		p.mu.Lock()
		p.lastSeen[in.UtteranceID] = *di
		p.mu.Unlock()
	}

	go p.reconcile(ctx, in)

	return di, ok
}

func (p *ParallelStrategy) reconcile(ctx context.Context, in UtteranceInput) {
	llmResult, ok := p.llm.DetectFinal(ctx, in)

	p.mu.Lock()
	prev, hadPrev := p.lastSeen[in.UtteranceID]
	p.mu.Unlock()

	now := p.now()

	switch {
	case !ok && hadPrev:
		p.emitCorrection(CorrectionEvent{UtteranceID: in.UtteranceID, Kind: Removed, Previous: &prev, Timestamp: now})
	case ok && !hadPrev:
		p.emitCorrection(CorrectionEvent{UtteranceID: in.UtteranceID, Kind: Added, Updated: llmResult, Timestamp: now})
	case ok && hadPrev:
		p.emitCorrection(reconcileIntents(in.UtteranceID, prev, *llmResult, now))
	}
}

// reconcileIntents decides Confirmed/TypeChanged/Added per the disagreement
// rule in §4.3.2: identical classification confirms; a changed type or
// (per the inferred decision on subtype-only disagreement) a changed
// subtype within the same type both surface as TypeChanged; a heuristic
// Statement default upgraded to a real LLM classification counts as Added.
func reconcileIntents(utteranceID string, prev, updated DetectedIntent, now time.Time) CorrectionEvent {
	ev := CorrectionEvent{UtteranceID: utteranceID, Previous: &prev, Updated: &updated, Timestamp: now}
	switch {
	case prev.Type == Statement && updated.Type != Statement:
		ev.Kind = Added
	case prev.Type == updated.Type && prev.Subtype == updated.Subtype:
		ev.Kind = Confirmed
	default:
		ev.Kind = TypeChanged
	}
	return ev
}

func (p *ParallelStrategy) emitCorrection(ev CorrectionEvent) {
	select {
	case p.corrections <- ev:
	default:
	}
}

func (p *ParallelStrategy) SignalPause() {
	p.heuristic.SignalPause()
	p.llm.SignalPause()
}

func (p *ParallelStrategy) Corrections() <-chan CorrectionEvent { return p.corrections }

func (p *ParallelStrategy) Close() {
	p.heuristic.Close()
	p.llm.Close()
}
