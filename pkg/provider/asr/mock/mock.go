// Package mock provides test doubles for the asr package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/univoice/core/pkg/provider/asr"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg asr.StreamConfig
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil,
	// StartStream returns a new default Session with a buffered channel.
	Session asr.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

var _ asr.Provider = (*Provider)(nil)

func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{SegmentsCh: make(chan asr.Segment, 64)}, nil
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// SendFrameCall records a single invocation of Session.SendFrame.
type SendFrameCall struct {
	Data []byte
}

// Session is a mock implementation of asr.SessionHandle. Callers should
// pre-populate SegmentsCh with the Segment values they want the consumer to
// receive, then close it when done.
type Session struct {
	mu sync.Mutex

	// SegmentsCh is the channel returned by Segments(). Callers own this
	// channel and are responsible for sending to and closing it in tests.
	SegmentsCh chan asr.Segment

	// SendFrameErr, if non-nil, is returned by every SendFrame call.
	SendFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	SendFrameCalls []SendFrameCall
	CloseCallCount int
}

var _ asr.SessionHandle = (*Session)(nil)

func (s *Session) SendFrame(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.SendFrameCalls = append(s.SendFrameCalls, SendFrameCall{Data: cp})
	return s.SendFrameErr
}

func (s *Session) Segments() <-chan asr.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SegmentsCh
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// SendFrameCallCount returns the number of SendFrame calls. Thread-safe.
func (s *Session) SendFrameCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendFrameCalls)
}
