// Package pipeline wires the individual UniVoice components (C1-C13) into a
// single session lifecycle and exposes the external command surface (spec
// §6: startListening, stopListening, pause, resume, clearHistory,
// generateVocabulary, generateFinalReport, translateUserInput).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/univoice/core/internal/config"
	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/internal/fingerprint"
	"github.com/univoice/core/internal/observe"
	"github.com/univoice/core/internal/pipeline/asrstream"
	"github.com/univoice/core/internal/pipeline/coalesce"
	"github.com/univoice/core/internal/pipeline/display"
	"github.com/univoice/core/internal/pipeline/history"
	"github.com/univoice/core/internal/pipeline/paragraph"
	"github.com/univoice/core/internal/pipeline/report"
	"github.com/univoice/core/internal/pipeline/router"
	"github.com/univoice/core/internal/pipeline/sentence"
	"github.com/univoice/core/internal/pipeline/summary"
	"github.com/univoice/core/internal/pipeline/translate"
	"github.com/univoice/core/internal/pipeline/vocabulary"
	"github.com/univoice/core/internal/pstate"
	"github.com/univoice/core/pkg/audio"
	"github.com/univoice/core/pkg/provider/asr"
	translateprovider "github.com/univoice/core/pkg/provider/translate"
)

// translationWaitForHistory bounds how long the pipeline waits for a
// realtime translation to complete before appending a history record with an
// empty translation (spec §4.13: history must not block on slow backends).
const translationWaitForHistory = 3 * time.Second

// Deps holds the constructed collaborators a Pipeline is assembled from.
type Deps struct {
	Config            *config.Config
	ASRProvider        asr.Provider
	RealtimeProvider   translateprovider.Provider
	QualityProvider    translateprovider.Provider
	VocabularyProvider translateprovider.Provider
	ReportProvider     translateprovider.Provider
	Metrics            *observe.Metrics
}

// Pipeline owns one session's worth of wired components: the event bus, the
// lifecycle state machine, the ASR adapter, and every C3-C13 processing
// stage. Only one session may be active at a time per Pipeline (enforced by
// pstate.Machine), mirroring the teacher's single-active-session lifecycle.
type Pipeline struct {
	cfg     *config.Config
	metrics *observe.Metrics

	bus   *event.Bus
	state *pstate.Machine

	framer      *audio.Framer
	asr         *asrstream.Adapter
	asrProvider asr.Provider
	streamCfg   asr.StreamConfig
	router      *router.Router

	realtime  *translate.Realtime
	quality   *translate.Quality
	coalescer *coalesce.Coalescer
	display   *display.Sync
	sentence  *sentence.Combiner
	paragraph *paragraph.Builder
	summary   *summary.Summarizer
	history   *history.History

	vocabulary *vocabulary.Generator
	report     *report.Generator

	mu                 sync.Mutex
	currentParagraphID string

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New assembles a Pipeline from its dependencies and configuration, but does
// not start any session — call StartListening to begin processing audio.
func New(deps Deps) *Pipeline {
	cfg := deps.Config
	bus := event.NewBus(uuid.NewString())
	targetLang := cfg.ASR.TargetLanguage
	sourceLang := cfg.ASR.Language

	realtime := translate.NewRealtime(deps.RealtimeProvider, bus, deps.Metrics, targetLang)
	quality := translate.NewQuality(deps.QualityProvider, bus, deps.Metrics, sourceLang, targetLang)
	quality.Supersede = realtime.Supersede

	coalescer := coalesce.New(bus)
	disp := display.New(bus)
	sentenceCombiner := sentence.New(bus)
	paragraphBuilder := paragraph.New(bus).WithParams(
		msOr(cfg.Paragraph.MinMs, 10000),
		msOr(cfg.Paragraph.MaxMs, 40000),
		msOr(cfg.Paragraph.SilenceMs, 2000),
	)

	summaryInterval := msOr(cfg.Summary.IntervalMs, 60000)
	wordThreshold := cfg.Summary.WordThreshold
	if wordThreshold <= 0 {
		wordThreshold = 150
	}
	summarizer := summary.New(deps.RealtimeProvider, realtime, bus, sourceLang, summaryInterval, wordThreshold)

	hist := history.New()

	p := &Pipeline{
		cfg:        cfg,
		metrics:    deps.Metrics,
		bus:        bus,
		state:      pstate.New(""),
		framer:     audio.NewFramer(),
		realtime:   realtime,
		quality:    quality,
		coalescer:  coalescer,
		display:    disp,
		sentence:   sentenceCombiner,
		paragraph:  paragraphBuilder,
		summary:    summarizer,
		history:    hist,
		vocabulary: vocabulary.New(deps.VocabularyProvider, cfg.LLM.ModelVocabulary, 0),
		report:     report.New(deps.ReportProvider, cfg.LLM.ModelReport, cfg.LLM.MaxTokensReport),
	}

	p.router = router.New(bus, router.Sinks{
		Translate: p.onFinalSegment,
		Sentence:  sentenceCombiner.Add,
		Paragraph: p.onParagraphSegment,
		History:   p.onHistorySegment,
		Coalesce: func(slot string, seg asr.Segment) {
			coalescer.Submit(coalesce.Update{
				SlotKey: slot,
				PairID:  seg.ID,
				Text:    seg.Text,
				IsFinal: seg.IsFinal,
			})
		},
	})

	p.asrProvider = deps.ASRProvider
	p.streamCfg = asr.StreamConfig{
		Interim:        cfg.ASR.Interim,
		EndpointingMs:  cfg.ASR.EndpointingMs,
		UtteranceEndMs: cfg.ASR.UtteranceEndMs,
		SmartFormat:    cfg.ASR.SmartFormat,
		NoDelay:        cfg.ASR.NoDelay,
		SampleRate:     audio.SampleRate,
		Encoding:       "linear16",
		Language:       sourceLang,
	}

	return p
}

func msOr(v, fallback int) time.Duration {
	if v <= 0 {
		return time.Duration(fallback) * time.Millisecond
	}
	return time.Duration(v) * time.Millisecond
}

// Bus returns the session's event bus, for callers that want to subscribe
// to the full event stream (e.g. a WebSocket bridge in cmd/univoice).
func (p *Pipeline) Bus() *event.Bus {
	return p.bus
}

// StartListening transitions the pipeline to Listening and opens the ASR
// session (spec §6 startListening).
func (p *Pipeline) StartListening(ctx context.Context) error {
	corr := uuid.NewString()
	if err := p.state.Start(corr); err != nil {
		return fmt.Errorf("pipeline: start listening: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	group, groupCtx := errgroup.WithContext(sessionCtx)
	p.group = group

	p.asr = asrstream.New(p.asrProvider, p.bus, corr, p.streamCfg, p.router.Route, func(err error) {
		slog.Error("asr stream failed, pipeline entering error state", "error", err)
		p.state.Fail()
		p.bus.Publish(event.KindStatus, map[string]any{"state": pstate.Error.String(), "reason": err.Error()})
	})

	if err := p.asr.Start(groupCtx); err != nil {
		p.state.Fail()
		cancel()
		return fmt.Errorf("pipeline: start asr stream: %w", err)
	}

	p.startBridges(groupCtx, group)

	if err := p.state.Listen(); err != nil {
		return fmt.Errorf("pipeline: transition to listening: %w", err)
	}
	p.bus.Publish(event.KindStatus, map[string]any{"state": pstate.Listening.String()})
	return nil
}

// SendFrame forwards a raw PCM chunk through the framer into the ASR
// adapter, respecting backpressure and the Paused state's silent-drop
// semantics (spec §4.1, §4.11).
func (p *Pipeline) SendFrame(chunk []byte, underBackpressure bool) error {
	if !p.state.AcceptsAudio() {
		return fmt.Errorf("pipeline: not accepting audio in state %s", p.state.State())
	}
	if p.state.State() == pstate.Paused {
		return nil
	}

	frames, err := p.framer.Write(chunk, underBackpressure)
	if err != nil {
		slog.Warn("audio framer error", "error", err)
	}
	for _, f := range frames {
		if sendErr := p.asr.SendFrame(f.Data); sendErr != nil {
			return fmt.Errorf("pipeline: send frame: %w", sendErr)
		}
	}
	return nil
}

// Pause suspends audio acceptance without tearing down the session (spec
// §6 pause).
func (p *Pipeline) Pause() error {
	if err := p.state.Pause(); err != nil {
		return fmt.Errorf("pipeline: pause: %w", err)
	}
	p.bus.Publish(event.KindStatus, map[string]any{"state": pstate.Paused.String()})
	return nil
}

// Resume resumes audio acceptance after a Pause (spec §6 resume).
func (p *Pipeline) Resume() error {
	if err := p.state.Resume(); err != nil {
		return fmt.Errorf("pipeline: resume: %w", err)
	}
	p.bus.Publish(event.KindStatus, map[string]any{"state": pstate.Listening.String()})
	return nil
}

// StopListening flushes the Sentence Combiner and Paragraph Builder, waits
// for in-flight translations, and closes the ASR session (spec §6
// stopListening).
func (p *Pipeline) StopListening(ctx context.Context) error {
	if err := p.state.Stop(); err != nil {
		return fmt.Errorf("pipeline: stop listening: %w", err)
	}

	p.sentence.ForceEmit()
	p.paragraph.Flush()
	p.realtime.Wait()
	p.quality.Wait()

	if err := p.asr.Close(); err != nil {
		slog.Warn("pipeline: asr close error", "error", err)
	}
	p.coalescer.Close()
	p.summary.Close()

	if p.cancel != nil {
		p.cancel()
	}
	if p.group != nil {
		_ = p.group.Wait()
	}

	if err := p.state.Stopped(); err != nil {
		return fmt.Errorf("pipeline: transition to idle: %w", err)
	}
	p.bus.Publish(event.KindStatus, map[string]any{"state": pstate.Idle.String()})
	return nil
}

// ClearHistory empties the Ring Buffer / History component (spec §6
// clearHistory).
func (p *Pipeline) ClearHistory() {
	p.history.Clear()
}

// GenerateVocabulary produces a glossary of technical terms from the full
// history transcript (spec §6 generateVocabulary / SPEC_FULL.md supplement).
func (p *Pipeline) GenerateVocabulary(ctx context.Context) ([]vocabulary.Term, error) {
	records := p.history.All()
	terms, err := p.vocabulary.Generate(ctx, flattenTranscript(records))
	if err != nil {
		return nil, fmt.Errorf("pipeline: generate vocabulary: %w", err)
	}
	p.bus.Publish(event.KindVocabulary, terms)
	return terms, nil
}

// GenerateFinalReport produces the long-form end-of-session report over the
// full history (spec §6 generateFinalReport / SPEC_FULL.md supplement).
func (p *Pipeline) GenerateFinalReport(ctx context.Context) (string, error) {
	records := p.history.All()
	text, err := p.report.Generate(ctx, records)
	if err != nil {
		return "", fmt.Errorf("pipeline: generate final report: %w", err)
	}
	p.bus.Publish(event.KindFinalReport, text)
	return text, nil
}

// TranslateUserInput submits an arbitrary operator-entered string (e.g. a
// Q&A prompt typed by the presenter) through the Realtime Translator's
// UserInput tier and waits for the terminal translation_complete event
// (spec §6 translateUserInput, SPEC_FULL.md supplement).
func (p *Pipeline) TranslateUserInput(ctx context.Context, text string) (string, error) {
	id := uuid.NewString()
	sub := p.bus.Subscribe("pipeline:user-input-wait:"+id, 8)
	defer sub.Close()

	p.realtime.SubmitText(ctx, id, text, fingerprint.TierUserInput, p.cfg.ASR.Language)

	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind != event.KindTranslationComplete {
				continue
			}
			c := evt.Payload.(translate.Complete)
			if c.SegmentID != id {
				continue
			}
			if c.Err != nil {
				return "", fmt.Errorf("pipeline: translate user input: %w", c.Err)
			}
			return c.Text, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// startBridges subscribes to the event bus and fans events into components
// that don't feed each other directly through Sinks: coalesced emissions
// into the Display Sync, translation drafts into the coalescer's
// translation slot, sentence/paragraph events into the High-Quality
// Translator, and Sentence/Paragraph-tier completions into History's
// tier-gated replacement.
func (p *Pipeline) startBridges(ctx context.Context, group *errgroup.Group) {
	sub := p.bus.Subscribe("pipeline:bridges", 1024)
	group.Go(func() error {
		for evt := range sub.Events() {
			switch evt.Kind {
			case event.KindCoalesced:
				p.display.HandleCoalesced(evt.Payload.(coalesce.Emission))
			case event.KindTranslationUpdate:
				p.onTranslationUpdate(evt.Payload.(translate.Update))
			case event.KindTranslationComplete:
				p.onTranslationComplete(evt.Payload.(translate.Complete))
			case event.KindSentence:
				p.onSentence(ctx, evt.Payload.(sentence.Sentence))
			case event.KindParagraph:
				p.onParagraph(ctx, evt.Payload.(paragraph.Paragraph))
			case event.KindFinal:
				p.onFinalForSummary(evt.Payload.(asr.Segment))
			}
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		sub.Close()
		return nil
	})
}

// onTranslationUpdate feeds a realtime streaming draft into the Stream
// Coalescer's translation slot, keyed by the segment it belongs to so the
// Display Sync can correlate it with the matching source-text pair via
// PairID (spec §4.5, §4.6).
func (p *Pipeline) onTranslationUpdate(u translate.Update) {
	if u.Tier != fingerprint.TierRealtime {
		return
	}
	p.coalescer.Submit(coalesce.Update{
		SlotKey:     "translation:" + u.SegmentID,
		PairID:      u.SegmentID,
		Translation: u.Text,
	})
}

// onTranslationComplete finalizes a realtime draft's coalescer slot and
// applies Sentence/Paragraph-tier refinements to History, gated by tier
// ranking (spec §4.9, §4.13).
func (p *Pipeline) onTranslationComplete(c translate.Complete) {
	if c.Err != nil {
		return
	}
	if c.Tier == fingerprint.TierRealtime {
		p.coalescer.Submit(coalesce.Update{
			SlotKey:     "translation:" + c.SegmentID,
			PairID:      c.SegmentID,
			Translation: c.Text,
			IsFinal:     true,
		})
		return
	}
	if c.Tier == fingerprint.TierSentence || c.Tier == fingerprint.TierParagraph {
		p.history.ReplaceTranslation([]string{c.SegmentID}, c.Tier, c.Text)
	}
}

func (p *Pipeline) onSentence(ctx context.Context, s sentence.Sentence) {
	p.quality.Submit(ctx, translate.Request{
		Tier:       fingerprint.TierSentence,
		Text:       s.SourceText,
		SegmentIDs: s.SegmentIDs,
	})
}

func (p *Pipeline) onParagraph(ctx context.Context, para paragraph.Paragraph) {
	p.quality.Submit(ctx, translate.Request{
		Tier:       fingerprint.TierParagraph,
		Text:       para.Text,
		SegmentIDs: para.EntryIDs,
	})
	p.mu.Lock()
	p.currentParagraphID = ""
	p.mu.Unlock()
}

// onFinalForSummary feeds the Progressive Summarizer off the main bridge
// loop: Add may synchronously fire a summarization+translation round when
// the word threshold is met, which must not stall the bridge's handling of
// every other event kind.
func (p *Pipeline) onFinalForSummary(seg asr.Segment) {
	go p.summary.Add(seg.Text)
}

func (p *Pipeline) onFinalSegment(seg asr.Segment) {
	p.realtime.Submit(context.Background(), seg, p.cfg.ASR.Language)
}

func (p *Pipeline) onParagraphSegment(seg asr.Segment) {
	p.paragraph.Add(paragraph.Entry{ID: seg.ID, Text: seg.Text})
}

// onHistorySegment appends a pending record once a realtime translation is
// available (or the wait deadline passes), then lets later refinement
// events (Sentence/Paragraph tier) replace it via ReplaceTranslation (spec
// §4.9, §4.13). Runs in its own goroutine so the multi-second translation
// wait never blocks the ASR segment-consuming loop that calls it.
func (p *Pipeline) onHistorySegment(seg asr.Segment) {
	p.mu.Lock()
	paragraphID := p.currentParagraphID
	if paragraphID == "" {
		paragraphID = seg.ID
		p.currentParagraphID = paragraphID
	}
	p.mu.Unlock()

	go func() {
		translation := p.waitRealtimeTranslation(seg.ID)
		p.history.Append(history.Record{
			ID:          seg.ID,
			ParagraphID: paragraphID,
			Source:      seg.Text,
			Translation: translation,
			Tier:        fingerprint.TierRealtime,
			Timestamp:   time.Now(),
		})
		p.history.Compact()
	}()
}

func (p *Pipeline) waitRealtimeTranslation(segmentID string) string {
	sub := p.bus.Subscribe("pipeline:history-wait:"+segmentID, 8)
	defer sub.Close()

	deadline := time.After(translationWaitForHistory)
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind != event.KindTranslationComplete {
				continue
			}
			c := evt.Payload.(translate.Complete)
			if c.SegmentID != segmentID || c.Err != nil {
				continue
			}
			return c.Text
		case <-deadline:
			return ""
		}
	}
}

// flattenTranscript joins history records into a single transcript string
// for completion-backed generators that don't need paragraph structure.
func flattenTranscript(records []history.Record) string {
	var texts []string
	for _, r := range records {
		texts = append(texts, r.Source)
	}
	out := ""
	for i, t := range texts {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
