// Package whispercpp provides a local, offline ASR provider backed by the
// whisper.cpp CGO bindings. It is used as the ASR resilience fallback when
// the streaming provider's circuit breaker is open (spec §4.2/§7 transport
// resilience).
//
// Because whisper.cpp is a batch (non-streaming) engine, this provider
// cannot emit true low-latency partials. It buffers incoming PCM, applies
// an energy-based silence detector to segment utterances, and emits a
// partial immediately followed by a final for each completed utterance.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/univoice/core/pkg/provider/asr"
)

const (
	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultRMSThreshold        = 300.0
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
	bitsPerSample              = 16
)

var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// triggers a flush of the accumulated speech buffer. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum duration of audio (ms) that may
// accumulate before a forced flush. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// Provider implements asr.Provider using whisper.cpp's CGO bindings. The
// model is loaded once and shared across all sessions.
type Provider struct {
	model               whisperlib.Model
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// New loads the whisper.cpp model at modelPath and returns a Provider. The
// caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}
	p := &Provider{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper.cpp model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new offline transcription session.
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whispercpp: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}

	s := &session{
		model:               p.model,
		language:            lang,
		sampleRate:          sr,
		silenceThresholdMs:  p.silenceThresholdMs,
		maxBufferDurationMs: p.maxBufferDurationMs,

		audioCh:  make(chan []byte, 256),
		segments: make(chan asr.Segment, 64),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// ---- session ----

type session struct {
	model               whisperlib.Model
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int

	audioCh  chan []byte
	segments chan asr.Segment

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	seq uint64
}

func (s *session) SendFrame(data []byte) error {
	select {
	case <-s.done:
		return errors.New("whispercpp: session is closed")
	default:
	}
	select {
	case s.audioCh <- data:
		return nil
	case <-s.done:
		return errors.New("whispercpp: session is closed")
	}
}

func (s *session) Segments() <-chan asr.Segment { return s.segments }

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.segments)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
		elapsed   time.Duration
	)

	bytesPerMs := s.sampleRate * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferDurationMs * bytesPerMs

	doFlush := func(start time.Duration) {
		if len(buffer) == 0 || !hadSpeech {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
			return
		}
		pcm := buffer
		buffer = nil
		hadSpeech = false
		silenceMs = 0

		text, err := s.infer(pcm)
		if err != nil {
			slog.Error("whispercpp inference failed", "error", err)
			return
		}
		if text == "" {
			return
		}

		s.seq++
		id := fmt.Sprintf("wcpp-%d", s.seq)
		end := start + time.Duration(len(pcm))*time.Second/time.Duration(s.sampleRate*2)

		select {
		case s.segments <- asr.Segment{ID: id, Text: text, IsFinal: false, StartTS: start, EndTS: end, Language: s.language}:
		default:
		}
		select {
		case s.segments <- asr.Segment{ID: id, Text: text, IsFinal: true, StartTS: start, EndTS: end, Language: s.language}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			doFlush(elapsed)
			return
		case <-s.done:
			doFlush(elapsed)
			return
		case chunk, ok := <-s.audioCh:
			if !ok {
				doFlush(elapsed)
				return
			}
			chunkMs := chunkDurationMs(chunk, s.sampleRate)
			rms := computeRMS(chunk)

			if rms < defaultRMSThreshold {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.silenceThresholdMs {
						doFlush(elapsed - time.Duration(len(buffer))*time.Second/time.Duration(s.sampleRate*2))
					}
				}
			} else {
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
					doFlush(elapsed - time.Duration(len(buffer))*time.Second/time.Duration(s.sampleRate*2))
				}
			}
			elapsed += time.Duration(chunkMs) * time.Millisecond
		}
	}
}

func (s *session) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32(pcm)

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whispercpp: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whispercpp: failed to set language, using default", "language", s.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

var _ asr.SessionHandle = (*session)(nil)
