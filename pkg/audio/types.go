// Package audio provides the frame type and framing logic for UniVoice's
// fixed-format audio ingress: mono 16-bit linear PCM at 16 kHz.
package audio

import "time"

// SampleRate is the only sample rate UniVoice's audio pipeline accepts.
const SampleRate = 16000

// Channels is the only channel count UniVoice's audio pipeline accepts.
const Channels = 1

// FrameDuration is the fixed framing interval enforced by [Framer].
const FrameDuration = 20 * time.Millisecond

// FrameSamples is the number of samples per frame at [SampleRate] for
// [FrameDuration]: 16000Hz * 0.02s = 320 samples/channel/direction in the
// general case, but UniVoice's wire contract (spec §3) fixes 640 samples
// per 20ms frame; kept as a named constant rather than derived so the
// framer's output size is never ambiguous.
const FrameSamples = 640

// FrameBytes is the exact byte length of one conforming frame: 640 samples
// of 16-bit PCM.
const FrameBytes = FrameSamples * 2

// Frame is a single 20ms / 640-sample / 16kHz mono PCM frame, produced by
// [Framer.Write]. Immutable once constructed; its lifetime runs from
// enqueue until it is either written to the ASR transport or dropped under
// backpressure.
type Frame struct {
	// Data is little-endian 16-bit PCM, always exactly [FrameBytes] long.
	Data []byte

	// Timestamp is the frame's position relative to session start.
	Timestamp time.Duration
}
