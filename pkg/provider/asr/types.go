// Package asr defines the Provider interface for streaming Automatic Speech
// Recognition backends (the external collaborator behind the ASR Stream
// Adapter, spec §4.2).
//
// A provider wraps a real-time transcription service and exposes a uniform
// streaming interface: once a session is open it accepts raw 16kHz mono PCM
// frames and emits a single ordered stream of Segment values, mixing
// low-latency interim hypotheses with authoritative finals distinguished by
// Segment.IsFinal.
package asr

import "time"

// Segment is a single ASR hypothesis. id is stable within a session; interim
// segments may carry the same ID across updates until finalized, at which
// point no further updates for that ID are emitted (spec §3).
type Segment struct {
	// ID is stable within a session and monotonically assigned.
	ID string

	// Text is the recognized content so far.
	Text string

	// StartTS and EndTS position the segment relative to session start.
	StartTS time.Duration
	EndTS   time.Duration

	// Confidence is the provider's overall confidence score (0.0-1.0). May be
	// zero if the provider does not report one.
	Confidence float64

	// IsFinal marks this as the authoritative, immutable result for ID.
	IsFinal bool

	// Language is the BCP-47 language tag the provider recognized against.
	Language string
}
