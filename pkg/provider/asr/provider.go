package asr

import "context"

// StreamConfig describes the recognition hints for a new ASR session, per
// spec §4.2 and §6.
type StreamConfig struct {
	// Model selects the provider's recognition model.
	Model string

	// Interim requests low-latency interim hypotheses in addition to finals.
	Interim bool

	// EndpointingMs is the provider's silence-to-endpoint threshold.
	EndpointingMs int

	// UtteranceEndMs is the silence gap the provider uses to emit an
	// utterance_end signal.
	UtteranceEndMs int

	// SmartFormat requests provider-side punctuation/casing normalization.
	SmartFormat bool

	// NoDelay requests the provider minimize internal buffering in favor of
	// lower latency over completeness.
	NoDelay bool

	// SampleRate is the audio sample rate in Hz. UniVoice always uses 16000.
	SampleRate int

	// Encoding names the PCM encoding. UniVoice always uses "linear16".
	Encoding string

	// Language is the BCP-47 language tag for recognition.
	Language string
}

// SessionHandle represents an open ASR streaming session. Callers must call
// Close when the session is no longer needed; failing to do so may leak
// goroutines and network connections inside the provider implementation. All
// methods are safe for concurrent use.
type SessionHandle interface {
	// SendFrame delivers a single framed PCM chunk to the provider. Calling
	// SendFrame after Close returns an error.
	SendFrame(data []byte) error

	// Segments returns the ordered stream of interim and final hypotheses.
	// The channel is closed when the session ends.
	Segments() <-chan Segment

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. Safe to call more than once.
	Close() error
}

// Provider is the abstraction over any streaming ASR backend. Implementations
// must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// configuration. The returned SessionHandle is ready to accept frames
	// immediately. Returns an error if the provider cannot establish the
	// session (auth failure, unsupported configuration, already-cancelled
	// context).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
