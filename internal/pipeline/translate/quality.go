package translate

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/internal/fingerprint"
	"github.com/univoice/core/internal/observe"
	translateprovider "github.com/univoice/core/pkg/provider/translate"
)

const (
	qualityQueueCapacity = 64
	qualityConcurrency   = 2
)

// qualitySystemPrompt instructs context-aware, technical-term-preserving
// translation, as opposed to the realtime translator's minimal prompt (spec
// §4.9).
const qualitySystemPrompt = "Translate the following %s to %s. Preserve technical terms and proper nouns exactly. Produce a context-aware, natural-sounding translation. Output only the translation."

// Request is a refinement request submitted to the High-Quality Translator:
// a Sentence or Paragraph's text plus the segment IDs it covers.
type Request struct {
	Tier       fingerprint.Tier // Sentence or Paragraph
	Text       string
	SegmentIDs []string
}

// Quality is the High-Quality Translator (C9). It refines sentences and
// paragraphs with a larger/slower model, publishing translation_update
// events that replace lower-tier drafts keyed by segment ID.
type Quality struct {
	provider   translateprovider.Provider
	bus        *event.Bus
	metrics    *observe.Metrics
	targetLang string
	sourceLang string

	// Supersede, if set, is invoked with the covered segment IDs before a
	// refinement is dispatched so the Realtime translator can cancel any
	// still-in-flight draft for the same span (spec §4.4).
	Supersede func(segmentIDs []string)

	sem *semaphore.Weighted

	mu    sync.Mutex
	queue []*Request

	wg sync.WaitGroup
}

// NewQuality creates a Quality translator.
func NewQuality(provider translateprovider.Provider, bus *event.Bus, metrics *observe.Metrics, sourceLang, targetLang string) *Quality {
	return &Quality{
		provider:   provider,
		bus:        bus,
		metrics:    metrics,
		sourceLang: sourceLang,
		targetLang: targetLang,
		sem:        semaphore.NewWeighted(qualityConcurrency),
	}
}

// Submit enqueues a refinement request. On queue overflow the oldest queued
// request is dropped and a translation_dropped error is published.
func (q *Quality) Submit(ctx context.Context, req Request) {
	job := &req

	q.mu.Lock()
	if len(q.queue) >= qualityQueueCapacity {
		dropped := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		q.bus.Publish(event.KindError, Dropped{Tier: dropped.Tier})
		if q.metrics != nil {
			q.metrics.RecordTranslationDropped(ctx, string(dropped.Tier))
		}
		q.mu.Lock()
	}
	q.queue = append(q.queue, job)
	q.mu.Unlock()

	q.wg.Add(1)
	go q.dispatch(ctx, job)
}

// Wait blocks until every dispatched refinement has completed.
func (q *Quality) Wait() {
	q.wg.Wait()
}

func (q *Quality) dispatch(ctx context.Context, job *Request) {
	defer q.wg.Done()
	defer q.removeFromQueue(job)

	if err := q.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer q.sem.Release(1)

	if q.Supersede != nil {
		q.Supersede(job.SegmentIDs)
	}

	resp, err := q.provider.Complete(ctx, translateprovider.CompletionRequest{
		SystemPrompt: qualityPrompt(q.sourceLang, q.targetLang),
		UserContent:  job.Text,
	})
	if err != nil {
		if q.metrics != nil {
			q.metrics.RecordProviderError(ctx, "translate", string(job.Tier))
		}
		for _, id := range job.SegmentIDs {
			q.bus.Publish(event.KindTranslationComplete, Complete{
				SegmentID: id, Tier: job.Tier, Err: err,
			})
		}
		return
	}

	q.bus.Publish(event.KindTranslationUpdate, Update{
		Tier:     job.Tier,
		Text:     resp.Content,
		Replaces: job.SegmentIDs,
	})
	for _, id := range job.SegmentIDs {
		q.bus.Publish(event.KindTranslationComplete, Complete{
			SegmentID: id, Tier: job.Tier, Text: resp.Content,
		})
	}
}

// removeFromQueue drops job from the backlog slice once it has finished (or
// will never run), so queue length reflects only refinements waiting for or
// holding a worker — not every refinement ever submitted in the session.
func (q *Quality) removeFromQueue(job *Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, j := range q.queue {
		if j == job {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return
		}
	}
}

func qualityPrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf(qualitySystemPrompt, sourceLang, targetLang)
}
