package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MaxResidualBytes bounds the framer's internal carry-over buffer to just
// under 40ms of audio, per spec §4.1 ("no state beyond a small residual
// buffer (< 40 ms)").
const MaxResidualBytes = FrameBytes * 2

// rmsSilenceFloor is the RMS amplitude below which a frame is considered
// silent. Silent frames are only dropped when the caller signals
// backpressure via [Framer.Write]'s underBackpressure argument.
const rmsSilenceFloor = 80

// Framer accepts PCM chunks of arbitrary size and re-frames them into exact
// 20ms/640-sample/16kHz mono units. It holds a small residual buffer for
// partial frames carried across calls. Not safe for concurrent use — create
// one per audio ingress stream.
type Framer struct {
	residual []byte
	seq      time.Duration

	warnedMalformed sync.Once
}

// NewFramer creates a [Framer] with an empty residual buffer.
func NewFramer() *Framer {
	return &Framer{}
}

// MalformedFrameError is returned by [Framer.Write] for input that cannot be
// interpreted as 16-bit PCM. It corresponds to spec §4.1's
// `error{recoverable:true}` on malformed frames.
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("audio: malformed frame: %s", e.Reason)
}

// Write accepts a chunk of raw little-endian 16-bit PCM of arbitrary size and
// returns zero or more complete [Frame]s. Incomplete trailing data is
// retained in the residual buffer for the next call. underBackpressure, when
// true, causes frames whose RMS amplitude falls below a silence floor to be
// dropped rather than returned — this only happens when the caller (the ASR
// stream adapter) has signalled it is under backpressure, per spec §4.1.
//
// An odd-length chunk (after accounting for the residual) is a malformed
// frame: the trailing odd byte is discarded and a [MalformedFrameError] is
// returned alongside any complete frames produced from the valid prefix.
func (fr *Framer) Write(chunk []byte, underBackpressure bool) ([]Frame, error) {
	buf := chunk
	if len(fr.residual) > 0 {
		buf = make([]byte, 0, len(fr.residual)+len(chunk))
		buf = append(buf, fr.residual...)
		buf = append(buf, chunk...)
		fr.residual = nil
	}

	var malformed error
	if len(buf)%2 != 0 {
		fr.warnedMalformed.Do(func() {
			slog.Warn("audio framer: odd byte count in PCM chunk, dropping trailing byte",
				"bytes", len(buf))
		})
		malformed = &MalformedFrameError{Reason: "odd byte count"}
		buf = buf[:len(buf)-1]
	}

	var frames []Frame
	for len(buf) >= FrameBytes {
		data := make([]byte, FrameBytes)
		copy(data, buf[:FrameBytes])
		buf = buf[FrameBytes:]

		if underBackpressure && rms16(data) < rmsSilenceFloor {
			fr.seq += FrameDuration
			continue
		}

		frames = append(frames, Frame{Data: data, Timestamp: fr.seq})
		fr.seq += FrameDuration
	}

	if len(buf) > 0 {
		if len(buf) > MaxResidualBytes {
			// Should not happen given FrameBytes-sized steps above, but guard
			// against an unbounded residual growing across malformed calls.
			buf = buf[len(buf)-MaxResidualBytes:]
		}
		fr.residual = append([]byte(nil), buf...)
	}

	return frames, malformed
}

// rms16 computes the root-mean-square amplitude of little-endian 16-bit PCM
// samples, used as a cheap voice-activity proxy for backpressure-driven
// silence dropping.
func rms16(data []byte) int64 {
	if len(data) < 2 {
		return 0
	}
	var sumSquares int64
	n := len(data) / 2
	for i := 0; i < n; i++ {
		s := int32(int16(data[2*i]) | int16(data[2*i+1])<<8)
		sumSquares += int64(s) * int64(s)
	}
	mean := sumSquares / int64(n)
	return isqrt(mean)
}

// isqrt computes the integer square root via Newton's method; precision
// sufficient for a silence-floor comparison.
func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
