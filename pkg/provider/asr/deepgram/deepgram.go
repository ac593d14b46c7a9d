// Package deepgram provides a Deepgram-backed ASR provider using the
// Deepgram streaming WebSocket API. It implements asr.Provider.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/univoice/core/pkg/provider/asr"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// Provider implements asr.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram,
// configured per spec §4.2/§6 (endpointing, utterance_end_ms, smart_format,
// no_delay, linear16 mono at cfg.SampleRate, or the provider's own rate when
// that is zero).
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		segments: make(chan asr.Segment, 128),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given
// config, mirroring the query parameters enumerated in spec §6.
func (p *Provider) buildURL(cfg asr.StreamConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	model := cfg.Model
	if model == "" {
		model = p.model
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("diarize", "false")
	q.Set("interim_results", strconv.FormatBool(cfg.Interim))
	if cfg.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(cfg.EndpointingMs))
	}
	if cfg.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(cfg.UtteranceEndMs))
	}
	if cfg.SmartFormat {
		q.Set("smart_format", "true")
	}
	if cfg.NoDelay {
		q.Set("no_delay", "true")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results
// event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// session is a live Deepgram streaming session. It implements asr.SessionHandle.
type session struct {
	conn     *websocket.Conn
	segments chan asr.Segment
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	seqMu sync.Mutex
	seq   uint64
}

// SendFrame queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendFrame(data []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- data:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// Segments returns the merged interim/final hypothesis stream.
func (s *session) Segments() <-chan asr.Segment { return s.segments }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to
// Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and assigns them stable,
// monotonically incrementing segment IDs per spec §4.2's ID policy: the
// provider doesn't expose a request-scoped ID on Results events, so a
// session-local monotonic counter synthesizes one. Interim updates keep the
// same ID as the most recent final boundary; a new ID is minted each time a
// final is observed.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.segments)

	currentID := s.nextID()

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		seg, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		seg.ID = currentID

		select {
		case s.segments <- seg:
		case <-s.done:
			return
		}

		if seg.IsFinal {
			currentID = s.nextID()
		}
	}
}

func (s *session) nextID() string {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return fmt.Sprintf("dg-%d", s.seq)
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a
// Segment. Returns (Segment, true) on success, or (zero, false) if the
// message should be ignored.
func parseDeepgramResponse(data []byte) (asr.Segment, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return asr.Segment{}, false
	}
	if resp.Type != "Results" {
		return asr.Segment{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return asr.Segment{}, false
	}

	alt := resp.Channel.Alternatives[0]
	return asr.Segment{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		StartTS:    time.Duration(resp.Start * float64(time.Second)),
		EndTS:      time.Duration((resp.Start + resp.Duration) * float64(time.Second)),
	}, true
}
