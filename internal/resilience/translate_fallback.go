package resilience

import (
	"context"

	"github.com/univoice/core/pkg/provider/translate"
)

// TranslateFallback implements [translate.Provider] with automatic failover
// across multiple completion backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type TranslateFallback struct {
	group *FallbackGroup[translate.Provider]
}

// Compile-time interface assertion.
var _ translate.Provider = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary translate.Provider, primaryName string, cfg FallbackConfig) *TranslateFallback {
	return &TranslateFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional completion provider as a fallback.
func (f *TranslateFallback) AddFallback(name string, provider translate.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *TranslateFallback) Complete(ctx context.Context, req translate.CompletionRequest) (*translate.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p translate.Provider) (*translate.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion sends the request to the first healthy provider and
// returns a streaming chunk channel. Only the initial connection attempt is
// covered by failover; once a stream is established, mid-stream errors are
// the caller's responsibility.
func (f *TranslateFallback) StreamCompletion(ctx context.Context, req translate.CompletionRequest) (<-chan translate.Chunk, error) {
	return ExecuteWithResult(f.group, func(p translate.Provider) (<-chan translate.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}
