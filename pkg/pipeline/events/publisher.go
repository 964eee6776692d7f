// Package events provides the fan-out primitive used to multiplex a single
// producer (a pipeline stage) to many external subscribers (UI, recorder,
// evaluation harness) without ever blocking the producer.
//
// This generalizes the teacher's ManagedStream.emit/drainAudioChunks pattern
// (non-blocking send, a closeOnce guard) into a reusable type shared by all
// nine pipeline streams, per the Design Notes: "Cross-thread event
// publication with per-subscriber exception catching ... Publish via an
// unbounded single-reader queue; each subscriber is an independent consumer
// that cannot block the producer." Unlike the teacher's fixed-capacity,
// drop-on-full channel, a subscriber here is backed by a growable queue: a
// slow consumer accumulates memory instead of losing events, and the
// producer's Publish call never blocks or drops regardless of how far
// behind any subscriber has fallen.
package events

import "sync"

// Publisher fans out values of type T to any number of subscribers. The
// zero value is not usable; construct with NewPublisher.
type Publisher[T any] struct {
	mu        sync.Mutex
	subs      map[int]*subscriber[T]
	nextID    int
	closed    bool
	closeOnce sync.Once
}

// subscriber holds one consumer's unbounded backlog. Publish only ever
// appends to queue and signals cond; the drain goroutine that feeds out is
// the only thing that can block, and it blocks alone.
type subscriber[T any] struct {
	out    chan T
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
}

func newSubscriber[T any]() *subscriber[T] {
	s := &subscriber[T]{out: make(chan T)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber[T]) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Signal()
}

// drain feeds queued values to out in order until closed and the queue has
// drained, then closes out. Runs on its own goroutine, one per subscriber.
func (s *subscriber[T]) drain() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.out <- v
	}
}

// NewPublisher creates an empty Publisher ready to accept subscribers.
func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{subs: make(map[int]*subscriber[T])}
}

// Subscribe registers a new listener and returns a receive-only channel of
// events published from this point forward. The returned channel is closed
// when the Publisher is closed.
func (p *Publisher[T]) Subscribe() <-chan T {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := newSubscriber[T]()
	if p.closed {
		close(s.out)
		return s.out
	}
	id := p.nextID
	p.nextID++
	p.subs[id] = s
	go s.drain()
	return s.out
}

// Publish delivers v to every current subscriber. Delivery is always
// non-blocking: it only appends to each subscriber's queue, so a stalled
// consumer never stalls the pipeline's single event thread, and no event is
// ever dropped.
func (p *Publisher[T]) Publish(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	for _, s := range p.subs {
		s.push(v)
	}
}

// Close shuts down the Publisher and closes every subscriber channel (after
// it has drained any values already queued). Safe to call more than once;
// safe to call concurrently with Publish/Subscribe.
func (p *Publisher[T]) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.closed = true
		for _, s := range p.subs {
			s.shutdown()
		}
	})
}
