// Package summary implements the Progressive Summarizer (C10): a
// timer-or-word-threshold-driven summary of accumulated finals, translated
// via the Realtime Translator's SummaryTranslate tier (spec §4.10).
package summary

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/internal/fingerprint"
	"github.com/univoice/core/internal/pipeline/translate"
	translateprovider "github.com/univoice/core/pkg/provider/translate"
)

const summarisationPrompt = `Summarize the following transcript of a live lecture in 2-3 sentences.
Preserve key claims, terminology, and conclusions. Be concise.`

const translationWait = 5 * time.Second

// Summary is the Progressive Summarizer's output (spec §3).
type Summary struct {
	Text        string
	Translation string
	WordCount   int
	CoversFrom  time.Time
	CoversTo    time.Time
}

// Summarizer accumulates final text and periodically produces a Summary
// (spec §4.10).
type Summarizer struct {
	provider   translateprovider.Provider
	realtime   *translate.Realtime
	bus        *event.Bus
	sourceLang string
	nextID     uint64

	interval      time.Duration
	wordThreshold int

	mu         sync.Mutex
	buf        []string
	wordCount  int
	coversFrom time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Summarizer that fires every interval (used as given; neither
// the Summarizer nor the pipeline clamps it to a range) or once wordThreshold
// words have accumulated, whichever comes first. provider is used directly
// for the summarization completion; realtime is used for the resulting
// summary's translation via C4's SummaryTranslate tier (spec §4.10).
func New(provider translateprovider.Provider, realtime *translate.Realtime, bus *event.Bus, sourceLang string, interval time.Duration, wordThreshold int) *Summarizer {
	s := &Summarizer{
		provider:      provider,
		realtime:      realtime,
		bus:           bus,
		sourceLang:    sourceLang,
		interval:      interval,
		wordThreshold: wordThreshold,
		stopCh:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Close stops the background timer loop.
func (s *Summarizer) Close() {
	close(s.stopCh)
	s.wg.Wait()
}

// Add folds a final's text into the accumulating buffer, triggering an
// immediate summary if the word threshold is reached.
func (s *Summarizer) Add(text string) {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.coversFrom = time.Now()
	}
	s.buf = append(s.buf, text)
	s.wordCount += len(strings.Fields(text))
	ready := s.wordThreshold > 0 && s.wordCount >= s.wordThreshold
	s.mu.Unlock()

	if ready {
		s.fire(context.Background())
	}
}

func (s *Summarizer) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.fire(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

func (s *Summarizer) fire(ctx context.Context) {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return
	}
	transcript := strings.Join(s.buf, " ")
	from := s.coversFrom
	s.buf = nil
	s.wordCount = 0
	s.mu.Unlock()

	summaryText, err := s.summarize(ctx, transcript)
	if err != nil {
		// Retry once, then skip and log (spec §4.10).
		if summaryText, err = s.summarize(ctx, transcript); err != nil {
			slog.Warn("summary: summarization failed after retry, skipping", "error", err)
			return
		}
	}

	translation := s.translate(ctx, summaryText)

	s.bus.Publish(event.KindSummary, Summary{
		Text:        summaryText,
		Translation: translation,
		WordCount:   len(strings.Fields(summaryText)),
		CoversFrom:  from,
		CoversTo:    time.Now(),
	})
}

func (s *Summarizer) summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := s.provider.Complete(ctx, translateprovider.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		UserContent:  transcript,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// translate submits text through the Realtime Translator's SummaryTranslate
// tier and waits for its terminal translation_complete event, so a summary
// translation dedupes against any identical in-flight realtime draft via the
// shared fingerprint machinery (spec §4.10: "request its translation via
// C4's path"). Returns "" if no result arrives within translationWait.
func (s *Summarizer) translate(ctx context.Context, text string) string {
	id := "summary-" + strconv.FormatUint(atomic.AddUint64(&s.nextID, 1), 10)

	sub := s.bus.Subscribe("summary-translate-wait:"+id, 16)
	defer sub.Close()

	s.realtime.SubmitText(ctx, id, text, fingerprint.TierSummaryTranslate, s.sourceLang)

	deadline := time.After(translationWait)
	for {
		select {
		case e := <-sub.Events():
			if e.Kind != event.KindTranslationComplete {
				continue
			}
			c, ok := e.Payload.(translate.Complete)
			if !ok || c.SegmentID != id {
				continue
			}
			return c.Text
		case <-deadline:
			return ""
		}
	}
}
