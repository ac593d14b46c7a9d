package asrstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/pkg/provider/asr"
	asrmock "github.com/univoice/core/pkg/provider/asr/mock"
)

// segmentCollector is a thread-safe onSegment sink for tests.
type segmentCollector struct {
	mu   sync.Mutex
	segs []asr.Segment
}

func (c *segmentCollector) collect(seg asr.Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segs = append(c.segs, seg)
}

func (c *segmentCollector) wait(t *testing.T, n int, timeout time.Duration) []asr.Segment {
	t.Helper()
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		if len(c.segs) >= n {
			out := append([]asr.Segment(nil), c.segs...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d segments", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAdapter_StartDeliversFinalsAndPartialsToOnSegment(t *testing.T) {
	session := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 8)}
	provider := &asrmock.Provider{Session: session}
	bus := event.NewBus("test")

	var collector segmentCollector
	a := New(provider, bus, "sess1", asr.StreamConfig{}, collector.collect, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if a.State() != StateOpen {
		t.Fatalf("state = %s, want open", a.State())
	}

	session.SegmentsCh <- asr.Segment{ID: "seg-1", Text: "hello", IsFinal: true}

	segs := collector.wait(t, 1, time.Second)
	if segs[0].ID != "seg-1" {
		t.Fatalf("segment ID = %q, want seg-1", segs[0].ID)
	}
}

func TestAdapter_SynthesizesIDWhenProviderOmitsOne(t *testing.T) {
	session := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 8)}
	provider := &asrmock.Provider{Session: session}
	bus := event.NewBus("test")

	var collector segmentCollector
	a := New(provider, bus, "sess1", asr.StreamConfig{}, collector.collect, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	session.SegmentsCh <- asr.Segment{Text: "no id here", IsFinal: false}

	segs := collector.wait(t, 1, time.Second)
	if segs[0].ID == "" {
		t.Fatal("expected a synthesized segment ID")
	}
	if segs[0].ID != "sess1-1" {
		t.Fatalf("synthesized ID = %q, want sess1-1", segs[0].ID)
	}
}

// TestAdapter_ReconnectsAfterSocketCloseAndResumesFinals covers scenario S7
// (ASR reconnect): killing the ASR socket mid-session reconnects within the
// backoff window and finals resume without duplicate IDs.
func TestAdapter_ReconnectsAfterSocketCloseAndResumesFinals(t *testing.T) {
	firstSession := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 8)}
	secondSession := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 8)}

	provider := &asrmock.Provider{Session: firstSession}
	bus := event.NewBus("test")

	var collector segmentCollector
	a := New(provider, bus, "sess1", asr.StreamConfig{}, collector.collect, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Swap the provider's session before closing the first one, simulating
	// the backend accepting a fresh connection on reconnect.
	provider.Session = secondSession
	close(firstSession.SegmentsCh)

	deadline := time.After(3 * time.Second)
	for a.State() != StateOpen {
		select {
		case <-deadline:
			t.Fatalf("adapter did not reconnect within deadline, state = %s", a.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	secondSession.SegmentsCh <- asr.Segment{ID: "seg-resumed", Text: "resumed", IsFinal: true}
	segs := collector.wait(t, 1, time.Second)
	if segs[0].ID != "seg-resumed" {
		t.Fatalf("segment ID = %q, want seg-resumed", segs[0].ID)
	}
}

func TestAdapter_SendFrameBuffersWhileReconnecting(t *testing.T) {
	session := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 8)}
	provider := &asrmock.Provider{Session: session}
	bus := event.NewBus("test")

	a := New(provider, bus, "sess1", asr.StreamConfig{}, func(asr.Segment) {}, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	a.setState(StateConnecting)
	if err := a.SendFrame([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendFrame() error while connecting = %v", err)
	}

	a.mu.Lock()
	n := len(a.buffered)
	a.mu.Unlock()
	if n != 1 {
		t.Fatalf("buffered frame count = %d, want 1", n)
	}
}

func TestAdapter_ExhaustsReconnectAttemptsAndFails(t *testing.T) {
	provider := &asrmock.Provider{}
	// Give the initial connect a working session so Start() succeeds, then
	// force every subsequent reconnect attempt to fail.
	firstSession := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 1)}
	provider.Session = firstSession

	bus := event.NewBus("test")

	var failed bool
	done := make(chan struct{})
	a := New(provider, bus, "sess1", asr.StreamConfig{}, func(asr.Segment) {}, func(err error) {
		failed = true
		close(done)
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	provider.StartStreamErr = context.DeadlineExceeded
	close(firstSession.SegmentsCh)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("onFail was not invoked within deadline")
	}
	if !failed {
		t.Fatal("expected reconnect exhaustion to invoke onFail")
	}
	if a.State() != StateFailed {
		t.Fatalf("state = %s, want failed", a.State())
	}
}
