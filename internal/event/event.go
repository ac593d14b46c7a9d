// Package event defines the Unified Event type and the single-writer
// sequencer bus that every pipeline component publishes through (spec §3,
// §4.12). A session has exactly one Bus; all cross-component signaling flows
// as events rather than direct callbacks, avoiding cyclic references between
// components such as the coalescer and the display sync.
package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the Unified Event payload classes (spec §3).
type Kind string

const (
	KindPartial             Kind = "partial"
	KindFinal               Kind = "final"
	KindUtteranceEnd        Kind = "utterance_end"
	KindTranslationUpdate   Kind = "translation_update"
	KindTranslationComplete Kind = "translation_complete"
	KindCoalesced           Kind = "coalesced"
	KindDisplayUpdate       Kind = "display_update"
	KindSentence            Kind = "sentence"
	KindParagraph           Kind = "paragraph"
	KindSummary             Kind = "summary"
	KindVocabulary          Kind = "vocabulary"
	KindFinalReport         Kind = "final_report"
	KindError               Kind = "error"
	KindStats               Kind = "stats"
	KindStatus              Kind = "status"
)

// Event is the Unified Event carried on the bus (spec §3). Seq is assigned by
// the Bus at publish time and strictly increases across a session; consumers
// may drop events with seq <= the last one they observed.
type Event struct {
	V       int
	ID      string
	Seq     uint64
	TS      time.Time
	Corr    string
	Kind    Kind
	Payload any
}

// Bus is the single-writer event sequencer for one session. All publishes
// go through Publish, which assigns the next seq value and fans the event out
// to every subscriber's bounded queue. Bus is safe for concurrent use by
// multiple publishing goroutines; sequencing itself is serialized by mu.
type Bus struct {
	corr string

	mu      sync.Mutex
	seq     uint64
	subs    map[*Subscription]struct{}
	nowFunc func() time.Time

	onDrop func(subscriberName string)
}

// NewBus creates a Bus for a single session, stamping every published event
// with corr as its correlation ID.
func NewBus(corr string) *Bus {
	return &Bus{
		corr:    corr,
		subs:    make(map[*Subscription]struct{}),
		nowFunc: time.Now,
	}
}

// OnDrop registers a callback invoked whenever a subscriber's queue overflows
// and an event is dropped for it. Used to wire stats{events_dropped}
// reporting without coupling the bus to a specific metrics backend.
func (b *Bus) OnDrop(fn func(subscriberName string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Publish assigns the next sequence number to kind/payload and delivers the
// resulting Event to every current subscriber. Per-subscriber delivery is
// non-blocking: a full queue drops its oldest entry to make room (spec
// §4.12, §5 backpressure). The bus is single-writer: mu is held across
// sequencing AND delivery, so two concurrent Publish calls cannot have their
// deliveries observed out of seq order — the second caller's fan-out simply
// waits for the first's to finish rather than racing it.
func (b *Bus) Publish(kind Kind, payload any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	evt := Event{
		V:       1,
		ID:      uuid.NewString(),
		Seq:     b.seq,
		TS:      b.nowFunc(),
		Corr:    b.corr,
		Kind:    kind,
		Payload: payload,
	}
	onDrop := b.onDrop

	for s := range b.subs {
		if dropped := s.deliver(evt); dropped && onDrop != nil {
			onDrop(s.name)
		}
	}
	return evt
}

// Subscribe registers a new subscriber with a bounded queue of the given
// capacity (spec default 1024) and returns a Subscription the caller drains
// via Events(). Close the Subscription to stop receiving and release its
// queue.
func (b *Bus) Subscribe(name string, capacity int) *Subscription {
	if capacity <= 0 {
		capacity = 1024
	}
	s := &Subscription{
		name: name,
		ch:   make(chan Event, capacity),
		bus:  b,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Seq returns the most recently assigned sequence number, or 0 if nothing has
// been published yet.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Subscription is a single subscriber's bounded view of the Bus.
type Subscription struct {
	name string
	ch   chan Event
	bus  *Bus

	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// Events returns the channel of delivered events. The channel is never closed
// by the bus itself; callers stop reading after calling Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns the number of events dropped for this subscriber due to a
// full queue, for stats{dropped} reporting.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription from its Bus. Safe to call more than
// once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
}

// deliver attempts a non-blocking send; on a full queue it drops the oldest
// queued event and retries once, reporting whether a drop occurred.
func (s *Subscription) deliver(evt Event) (dropped bool) {
	select {
	case s.ch <- evt:
		return false
	default:
	}

	select {
	case <-s.ch:
		dropped = true
	default:
	}

	select {
	case s.ch <- evt:
	default:
		// Another goroutine raced us and refilled the queue; count the drop
		// and give up rather than block the publisher.
	}

	if dropped {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
	return dropped
}
