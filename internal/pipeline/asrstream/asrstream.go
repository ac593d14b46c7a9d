// Package asrstream implements the ASR Stream Adapter's connection
// orchestration (C2): a reconnect state machine with exponential backoff,
// bounded frame buffering during reconnect, and stable segment ID synthesis
// for providers that don't supply one (spec §4.2).
package asrstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/pkg/provider/asr"
)

// State is the ASR connection's lifecycle state (spec §4.2).
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateDraining     State = "draining"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

const (
	initialBackoff    = 250 * time.Millisecond
	maxBackoff        = 8 * time.Second
	maxAttempts       = 5
	attemptWindow     = 60 * time.Second
	bufferWindow      = 2 * time.Second
)

// bufferedFrame is a frame held while reconnecting, so it can be dropped
// oldest-first once bufferWindow is exceeded (spec §4.2).
type bufferedFrame struct {
	data []byte
	at   time.Time
}

// Adapter owns one ASR provider session, transparently reconnecting on
// disconnect and handing each recognized segment to onSegment with a stable
// ID (spec §4.2). It does not publish segments on the bus itself — that is
// the Segment Router's (C3) job, per spec §4.3 ("C2 emits interim/final
// segments → C3 routes by finality"); the bus is only used here for
// ancillary stats (dropped-audio counts).
type Adapter struct {
	provider  asr.Provider
	bus       *event.Bus
	cfg       asr.StreamConfig
	sessionID string

	onSegment func(asr.Segment)
	onFail    func(error)

	mu         sync.Mutex
	state      State
	handle     asr.SessionHandle
	buffered   []bufferedFrame
	attempts   []time.Time
	segCounter uint64
	stopped    bool

	wg sync.WaitGroup
}

// New creates an Adapter. onSegment is invoked for every interim/final
// segment the provider emits, in order; it is expected to forward to the
// Segment Router's Route method. onFail, if non-nil, is invoked once
// reconnection is exhausted (spec §4.2: "on exhaustion transitions the
// pipeline to Error") — the caller is expected to drive the pipeline state
// machine's Fail() transition from it.
func New(provider asr.Provider, bus *event.Bus, sessionID string, cfg asr.StreamConfig, onSegment func(asr.Segment), onFail func(error)) *Adapter {
	return &Adapter{
		provider:  provider,
		bus:       bus,
		cfg:       cfg,
		sessionID: sessionID,
		onSegment: onSegment,
		onFail:    onFail,
		state:     StateDisconnected,
	}
}

// Start opens the initial ASR session.
func (a *Adapter) Start(ctx context.Context) error {
	a.setState(StateConnecting)
	handle, err := a.provider.StartStream(ctx, a.cfg)
	if err != nil {
		a.setState(StateFailed)
		return fmt.Errorf("asrstream: initial connect: %w", err)
	}

	a.mu.Lock()
	a.handle = handle
	a.mu.Unlock()
	a.setState(StateOpen)

	a.wg.Add(1)
	go a.consumeSegments(ctx, handle)
	return nil
}

// State returns the adapter's current connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SendFrame delivers a framed PCM chunk. While reconnecting, frames are
// buffered for up to bufferWindow and dropped oldest-first beyond that
// (spec §4.2).
func (a *Adapter) SendFrame(data []byte) error {
	a.mu.Lock()
	if a.state == StateOpen && a.handle != nil {
		handle := a.handle
		a.mu.Unlock()
		return handle.SendFrame(data)
	}
	if a.state == StateConnecting {
		a.buffered = append(a.buffered, bufferedFrame{data: data, at: time.Now()})
		a.evictStaleBufferLocked()
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()
	return fmt.Errorf("asrstream: cannot send frame in state %s", a.state)
}

// evictStaleBufferLocked drops buffered frames older than bufferWindow,
// oldest first. Must be called with a.mu held.
func (a *Adapter) evictStaleBufferLocked() {
	cutoff := time.Now().Add(-bufferWindow)
	start := 0
	for start < len(a.buffered) && a.buffered[start].at.Before(cutoff) {
		start++
	}
	if start > 0 {
		a.bus.Publish(event.KindStats, map[string]any{"audio_dropped": start})
		a.buffered = a.buffered[start:]
	}
}

// Close drains the adapter and releases the underlying session.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.stopped = true
	handle := a.handle
	a.state = StateClosed
	a.mu.Unlock()

	var err error
	if handle != nil {
		err = handle.Close()
	}
	a.wg.Wait()
	return err
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Adapter) consumeSegments(ctx context.Context, handle asr.SessionHandle) {
	defer a.wg.Done()
	for seg := range handle.Segments() {
		if seg.ID == "" {
			seg.ID = a.synthesizeID()
		}
		if a.onSegment != nil {
			a.onSegment(seg)
		}
	}

	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return
	}

	a.reconnect(ctx)
}

func (a *Adapter) synthesizeID() string {
	n := atomic.AddUint64(&a.segCounter, 1)
	return fmt.Sprintf("%s-%d", a.sessionID, n)
}

// reconnect runs the exponential-backoff reconnect policy (spec §4.2: start
// 250ms, cap 8s, max 5 attempts per 60s window).
func (a *Adapter) reconnect(ctx context.Context) {
	a.setState(StateConnecting)
	backoff := initialBackoff

	for {
		a.mu.Lock()
		now := time.Now()
		a.attempts = append(a.attempts, now)
		a.trimAttemptWindowLocked(now)
		exhausted := len(a.attempts) > maxAttempts
		a.mu.Unlock()

		if exhausted {
			a.setState(StateFailed)
			if a.onFail != nil {
				a.onFail(fmt.Errorf("asrstream: exhausted %d reconnect attempts within %s", maxAttempts, attemptWindow))
			}
			return
		}

		handle, err := a.provider.StartStream(ctx, a.cfg)
		if err == nil {
			a.mu.Lock()
			a.handle = handle
			a.state = StateOpen
			buffered := a.buffered
			a.buffered = nil
			a.mu.Unlock()

			for _, bf := range buffered {
				_ = handle.SendFrame(bf.data)
			}

			a.wg.Add(1)
			go a.consumeSegments(ctx, handle)
			return
		}

		slog.Warn("asr reconnect attempt failed", "session_id", a.sessionID, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			a.setState(StateFailed)
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// trimAttemptWindowLocked drops recorded attempts older than attemptWindow.
// Must be called with a.mu held.
func (a *Adapter) trimAttemptWindowLocked(now time.Time) {
	cutoff := now.Add(-attemptWindow)
	start := 0
	for start < len(a.attempts) && a.attempts[start].Before(cutoff) {
		start++
	}
	a.attempts = a.attempts[start:]
}
