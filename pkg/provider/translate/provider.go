// Package translate defines the Provider interface for streaming completion
// backends used by the translation, summarization, vocabulary, and report
// components (spec §4.4, §4.9, §4.10, and the supplemented vocabulary/report
// features).
//
// Unlike a general-purpose LLM abstraction, this interface carries no tool
// calling surface: every use in UniVoice is a plain single-turn completion
// over a system+user prompt.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed when the stream ends or ctx is cancelled.
package translate

import "context"

// CompletionRequest carries everything a backend needs to produce a
// completion.
type CompletionRequest struct {
	// SystemPrompt is the instruction prefix (e.g. "Translate <src> to <tgt>.
	// Output only the translation.").
	SystemPrompt string

	// UserContent is the text to operate on.
	UserContent string

	// Model selects the backend's model identifier.
	Model string

	// MaxTokens caps completion length. Zero uses the provider default.
	MaxTokens int

	// Temperature controls output randomness; 0 is effectively deterministic.
	Temperature float64
}

// Chunk is a single token or fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or "error".
	FinishReason string

	// Err is set when FinishReason is "error".
	Err error
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the abstraction over any streaming completion backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// of Chunk values. The channel is closed when generation finishes or ctx
	// is cancelled. The initial error return is non-nil only for failures
	// that prevent the stream from starting.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response, for callers that
	// don't need incremental output (used by the Progressive Summarizer and
	// report/vocabulary generation). Implementations issue a separate
	// non-streaming request; it does not go through StreamCompletion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
