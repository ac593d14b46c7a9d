package translate

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/internal/fingerprint"
	"github.com/univoice/core/internal/observe"
	"github.com/univoice/core/pkg/provider/asr"
	translateprovider "github.com/univoice/core/pkg/provider/translate"
)

const (
	realtimeQueueCapacity  = 32
	realtimeConcurrency    = 4
	firstTokenSoftDeadline = 1000 * time.Millisecond
	realtimeHardTimeout    = 5000 * time.Millisecond
	realtimeRetryDelay     = 250 * time.Millisecond
)

// Realtime is the Realtime Translator (C4). It maintains a bounded,
// drop-oldest job queue and a fixed pool of concurrent workers, enforcing
// at-most-one in-flight job per fingerprint.
type Realtime struct {
	provider   translateprovider.Provider
	bus        *event.Bus
	metrics    *observe.Metrics
	targetLang string
	systemTmpl func(sourceLang, targetLang string) string

	sem *semaphore.Weighted

	mu        sync.Mutex
	queue     []*Job
	inFlight  map[fingerprint.Fingerprint]*Job
	bySegment map[string]*Job

	wg sync.WaitGroup
}

// NewRealtime creates a Realtime translator publishing events on bus and
// executing completions against provider.
func NewRealtime(provider translateprovider.Provider, bus *event.Bus, metrics *observe.Metrics, targetLang string) *Realtime {
	return &Realtime{
		provider:   provider,
		bus:        bus,
		metrics:    metrics,
		targetLang: targetLang,
		systemTmpl: defaultSystemPrompt,
		sem:        semaphore.NewWeighted(realtimeConcurrency),
		inFlight:   make(map[fingerprint.Fingerprint]*Job),
		bySegment:  make(map[string]*Job),
	}
}

func defaultSystemPrompt(src, tgt string) string {
	return "Translate " + src + " to " + tgt + ". Output only the translation."
}

// Submit enqueues a final segment for realtime translation. Duplicate
// submissions for a fingerprint that already has an in-flight job are
// collapsed (spec §3: "duplicates collapse to a single subscription"). On
// queue overflow the oldest queued job is dropped and a translation_dropped
// error is published.
func (r *Realtime) Submit(ctx context.Context, seg asr.Segment, sourceLang string) {
	r.SubmitText(ctx, seg.ID, seg.Text, fingerprint.TierRealtime, sourceLang)
}

// SubmitText enqueues an arbitrary piece of text for translation through the
// same bounded job queue, fingerprint collapsing, and deadline/retry
// machinery as Submit, under the given tier. Used by one-off callers outside
// the ASR segment stream — the Progressive Summarizer's SummaryTranslate tier
// (spec §4.10) and ad hoc user input translation (spec §6 UserInput tier) —
// so those requests dedupe against any identical in-flight realtime draft.
func (r *Realtime) SubmitText(ctx context.Context, id, text string, tier fingerprint.Tier, sourceLang string) {
	fp := fingerprint.Compute(text, tier, r.targetLang)

	r.mu.Lock()
	if existing, ok := r.inFlight[fp]; ok && (existing.State == StateInFlight || existing.State == StateStreaming) {
		r.mu.Unlock()
		return
	}

	job := &Job{
		Fingerprint: fp,
		SegmentID:   id,
		SourceText:  text,
		Tier:        tier,
		TargetLang:  r.targetLang,
		State:       StateQueued,
	}

	if len(r.queue) >= realtimeQueueCapacity {
		dropped := r.queue[0]
		r.queue = r.queue[1:]
		delete(r.bySegment, dropped.SegmentID)
		r.mu.Unlock()
		r.bus.Publish(event.KindError, Dropped{SegmentID: dropped.SegmentID, Tier: dropped.Tier})
		if r.metrics != nil {
			r.metrics.RecordTranslationDropped(ctx, string(dropped.Tier))
		}
		r.mu.Lock()
	}

	r.queue = append(r.queue, job)
	r.bySegment[id] = job
	r.mu.Unlock()

	r.wg.Add(1)
	go r.dispatch(ctx, job, sourceLang)
}

// Supersede cancels any in-flight realtime job for the given segment IDs,
// transitioning them to Superseded. Called when C9 publishes a refinement
// covering those segments (spec §4.4).
func (r *Realtime) Supersede(segmentIDs []string) {
	r.mu.Lock()
	var toCancel []*Job
	for _, id := range segmentIDs {
		if job, ok := r.bySegment[id]; ok && (job.State == StateInFlight || job.State == StateStreaming || job.State == StateQueued) {
			toCancel = append(toCancel, job)
		}
	}
	r.mu.Unlock()

	for _, job := range toCancel {
		job.Cancel()
		r.setState(job, StateSuperseded)
	}
}

// Wait blocks until every dispatched job has completed. Used by session
// shutdown; it does not cancel jobs that are still running, so shutdown
// waits for each of them to finish.
func (r *Realtime) Wait() {
	r.wg.Wait()
}

func (r *Realtime) dispatch(ctx context.Context, job *Job, sourceLang string) {
	defer r.wg.Done()
	defer r.removeFromQueue(job)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.setState(job, StateFailed)
		return
	}
	defer r.sem.Release(1)

	r.mu.Lock()
	job.State = StateInFlight
	job.StartedAt = time.Now()
	job.TimeoutAt = job.StartedAt.Add(realtimeHardTimeout)
	r.inFlight[job.Fingerprint] = job
	r.mu.Unlock()

	r.runWithRetry(ctx, job, sourceLang)

	r.mu.Lock()
	delete(r.inFlight, job.Fingerprint)
	delete(r.bySegment, job.SegmentID)
	r.mu.Unlock()
}

// removeFromQueue drops job from the backlog slice once it has finished (or
// will never run), so queue length reflects only jobs waiting for or
// holding a worker — not every job ever submitted in the session.
func (r *Realtime) removeFromQueue(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, j := range r.queue {
		if j == job {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}

func (r *Realtime) runWithRetry(ctx context.Context, job *Job, sourceLang string) {
	err := r.attempt(ctx, job, sourceLang)
	if err == nil {
		return
	}
	if job.State == StateSuperseded {
		return
	}

	select {
	case <-time.After(realtimeRetryDelay):
	case <-ctx.Done():
		r.finishFailed(job, ctx.Err())
		return
	}

	if err := r.attempt(ctx, job, sourceLang); err != nil && job.State != StateSuperseded {
		r.finishFailed(job, err)
	}
}

func (r *Realtime) attempt(parent context.Context, job *Job, sourceLang string) error {
	ctx, cancel := context.WithTimeout(parent, realtimeHardTimeout)
	r.mu.Lock()
	job.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	req := translateprovider.CompletionRequest{
		SystemPrompt: r.systemTmpl(sourceLang, job.TargetLang),
		UserContent:  job.SourceText,
	}

	chunks, err := r.provider.StreamCompletion(ctx, req)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordProviderError(ctx, "translate", "realtime")
		}
		return err
	}

	r.setState(job, StateStreaming)

	var text strings.Builder
	firstToken := true
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.bus.Publish(event.KindTranslationUpdate, Update{
				SegmentID: job.SegmentID, Tier: job.Tier, Text: text.String(), Tentative: true,
			})
			r.bus.Publish(event.KindTranslationComplete, Complete{
				SegmentID: job.SegmentID, Tier: job.Tier, Text: text.String(), Err: ctx.Err(),
			})
			r.setState(job, StateTimedOut)
			return nil
		case chunk, ok := <-chunks:
			if !ok {
				r.bus.Publish(event.KindTranslationComplete, Complete{
					SegmentID: job.SegmentID, Tier: job.Tier, Text: text.String(),
				})
				r.setState(job, StateCompleted)
				if r.metrics != nil {
					r.metrics.RecordTranslation(ctx, string(job.Tier), time.Since(start).Seconds())
				}
				return nil
			}
			if firstToken {
				firstToken = false
				if time.Since(start) > firstTokenSoftDeadline && r.metrics != nil {
					r.metrics.SlowFirstPaint.Add(ctx, 1)
				}
			}
			if chunk.Err != nil {
				return chunk.Err
			}
			text.WriteString(chunk.Text)
			r.bus.Publish(event.KindTranslationUpdate, Update{
				SegmentID: job.SegmentID, Tier: job.Tier, Text: text.String(),
			})
			if chunk.FinishReason != "" && chunk.FinishReason != "stop" {
				err := chunk.Err
				r.bus.Publish(event.KindTranslationComplete, Complete{
					SegmentID: job.SegmentID, Tier: job.Tier, Text: text.String(), Err: err,
				})
				r.setState(job, StateFailed)
				return err
			}
		}
	}
}

func (r *Realtime) finishFailed(job *Job, err error) {
	r.bus.Publish(event.KindTranslationComplete, Complete{
		SegmentID: job.SegmentID, Tier: job.Tier, Err: err,
	})
	r.setState(job, StateFailed)
}

func (r *Realtime) setState(job *Job, state JobState) {
	r.mu.Lock()
	job.State = state
	r.mu.Unlock()
}
