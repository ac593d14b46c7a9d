package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/univoice/core/pkg/provider/translate"
	translatemock "github.com/univoice/core/pkg/provider/translate/mock"
)

func TestTranslateFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &translatemock.Provider{
		CompleteResponse: &translate.CompletionResponse{Content: "hola desde primary"},
	}
	secondary := &translatemock.Provider{
		CompleteResponse: &translate.CompletionResponse{Content: "hola desde secondary"},
	}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), translate.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hola desde primary" {
		t.Fatalf("content = %q, want 'hola desde primary'", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.CompleteCalls))
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.CompleteCalls))
	}
}

func TestTranslateFallback_Complete_Failover(t *testing.T) {
	primary := &translatemock.Provider{
		CompleteErr: errors.New("primary down"),
	}
	secondary := &translatemock.Provider{
		CompleteResponse: &translate.CompletionResponse{Content: "hola desde secondary"},
	}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), translate.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hola desde secondary" {
		t.Fatalf("content = %q, want 'hola desde secondary'", resp.Content)
	}
}

func TestTranslateFallback_Complete_AllFail(t *testing.T) {
	primary := &translatemock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &translatemock.Provider{CompleteErr: errors.New("secondary down")}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), translate.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranslateFallback_StreamCompletion_Failover(t *testing.T) {
	primary := &translatemock.Provider{
		StreamErr: errors.New("stream failed"),
	}
	secondary := &translatemock.Provider{
		StreamChunks: []translate.Chunk{{Text: "chunk1"}, {Text: "chunk2", FinishReason: "stop"}},
	}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.StreamCompletion(context.Background(), translate.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunks []translate.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Text != "chunk1" {
		t.Fatalf("chunk[0].Text = %q, want chunk1", chunks[0].Text)
	}
}
