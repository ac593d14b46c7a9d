package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/univoice/core/pkg/provider/asr"
	asrmock "github.com/univoice/core/pkg/provider/asr/mock"
)

func TestASRFallback_StartStream_PrimarySuccess(t *testing.T) {
	sess := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 1)}
	primary := &asrmock.Provider{Session: sess}
	secondary := &asrmock.Provider{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.StartStream(context.Background(), asr.StreamConfig{
		SampleRate: 16000,
		Encoding:   "linear16",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if len(primary.StartStreamCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.StartStreamCalls))
	}
	if len(secondary.StartStreamCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.StartStreamCalls))
	}
	_ = handle.Close()
}

func TestASRFallback_StartStream_Failover(t *testing.T) {
	primary := &asrmock.Provider{
		StartStreamErr: errors.New("primary down"),
	}
	secondarySess := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 1)}
	secondary := &asrmock.Provider{Session: secondarySess}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.StartStream(context.Background(), asr.StreamConfig{
		SampleRate: 16000,
		Encoding:   "linear16",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if len(secondary.StartStreamCalls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.StartStreamCalls))
	}
	_ = handle.Close()
}

func TestASRFallback_StartStream_AllFail(t *testing.T) {
	primary := &asrmock.Provider{StartStreamErr: errors.New("primary down")}
	secondary := &asrmock.Provider{StartStreamErr: errors.New("secondary down")}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.StartStream(context.Background(), asr.StreamConfig{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
