package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/univoice/core/internal/config"
	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/pkg/provider/asr"
	asrmock "github.com/univoice/core/pkg/provider/asr/mock"
	translateprovider "github.com/univoice/core/pkg/provider/translate"
	translatemock "github.com/univoice/core/pkg/provider/translate/mock"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ASR.Language = "en"
	cfg.ASR.TargetLanguage = "ja"
	cfg.Paragraph.MinMs = 50
	cfg.Paragraph.MaxMs = 200
	cfg.Paragraph.SilenceMs = 30
	cfg.Summary.IntervalMs = 60000
	cfg.Summary.WordThreshold = 1_000_000 // effectively disabled for most tests
	return cfg
}

func newTestPipeline(t *testing.T) (*Pipeline, *asrmock.Session, *translatemock.Provider) {
	t.Helper()
	session := &asrmock.Session{SegmentsCh: make(chan asr.Segment, 32)}
	asrProvider := &asrmock.Provider{Session: session}
	translateProvider := &translatemock.Provider{
		StreamChunks:     []translateprovider.Chunk{{Text: "hola"}},
		CompleteResponse: &translateprovider.CompletionResponse{Content: "refined"},
	}

	p := New(Deps{
		Config:             testConfig(),
		ASRProvider:        asrProvider,
		RealtimeProvider:   translateProvider,
		QualityProvider:    translateProvider,
		VocabularyProvider: translateProvider,
		ReportProvider:     translateProvider,
	})
	return p, session, translateProvider
}

func drainEvent(t *testing.T, sub *event.Subscription, kind event.Kind, timeout time.Duration) (event.Event, bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind == kind {
				return evt, true
			}
		case <-deadline:
			return event.Event{}, false
		}
	}
}

func TestPipeline_StartListeningThenFinalSegmentFlowsToHistory(t *testing.T) {
	p, session, _ := newTestPipeline(t)
	sub := p.Bus().Subscribe("watch", 256)
	defer sub.Close()

	if err := p.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}

	session.SegmentsCh <- asr.Segment{ID: "seg-1", Text: "hello world", IsFinal: true}

	if _, ok := drainEvent(t, sub, event.KindFinal, 2*time.Second); !ok {
		t.Fatal("expected a final event")
	}

	deadline := time.After(3 * time.Second)
	for {
		records := p.history.All()
		if len(records) == 1 && records[0].ID == "seg-1" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("history never received the segment, records = %+v", records)
		case <-time.After(20 * time.Millisecond):
		}
	}

	if err := p.StopListening(context.Background()); err != nil {
		t.Fatalf("StopListening() error = %v", err)
	}
}

func TestPipeline_InterimSegmentProducesDisplaySnapshot(t *testing.T) {
	p, session, _ := newTestPipeline(t)

	if err := p.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	defer p.StopListening(context.Background())

	session.SegmentsCh <- asr.Segment{ID: "seg-1", Text: "hel", IsFinal: false}
	session.SegmentsCh <- asr.Segment{ID: "seg-1", Text: "hello!", IsFinal: false}

	deadline := time.After(2 * time.Second)
	for {
		snap := p.display.Snapshot()
		if len(snap.Pairs) == 1 && snap.Pairs[0].SourceText == "hello!" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("display never reflected the coalesced interim, snapshot = %+v", snap)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestPipeline_PauseDropsAudioWithoutError(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if err := p.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	defer p.StopListening(context.Background())

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := p.SendFrame(make([]byte, 1280), false); err != nil {
		t.Fatalf("SendFrame() while paused should be a silent no-op, got error = %v", err)
	}
	if err := p.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
}

func TestPipeline_StopWithoutStartIsInvalidTransition(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if err := p.StopListening(context.Background()); err == nil {
		t.Fatal("expected an error stopping a pipeline that was never started")
	}
}

func TestPipeline_ClearHistoryEmptiesRecords(t *testing.T) {
	p, session, _ := newTestPipeline(t)
	if err := p.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	defer p.StopListening(context.Background())

	session.SegmentsCh <- asr.Segment{ID: "seg-1", Text: "hello", IsFinal: true}

	deadline := time.After(2 * time.Second)
	for len(p.history.All()) == 0 {
		select {
		case <-deadline:
			t.Fatal("history never received the segment")
		case <-time.After(20 * time.Millisecond):
		}
	}

	p.ClearHistory()
	if len(p.history.All()) != 0 {
		t.Fatal("expected history to be empty after ClearHistory")
	}
}

func TestPipeline_TranslateUserInputReturnsTranslation(t *testing.T) {
	p, _, translateProvider := newTestPipeline(t)
	translateProvider.StreamChunks = []translateprovider.Chunk{{Text: "Hola"}, {Text: " mundo"}}

	if err := p.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	defer p.StopListening(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := p.TranslateUserInput(ctx, "hello world")
	if err != nil {
		t.Fatalf("TranslateUserInput() error = %v", err)
	}
	if got != "Hola mundo" {
		t.Fatalf("translation = %q, want %q", got, "Hola mundo")
	}
}

func TestPipeline_GenerateVocabularyAndFinalReportOverEmptyHistory(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	terms, err := p.GenerateVocabulary(context.Background())
	if err != nil {
		t.Fatalf("GenerateVocabulary() error = %v", err)
	}
	if len(terms) != 0 {
		t.Fatalf("expected no terms parsed from the mock's non-term response, got %+v", terms)
	}

	report, err := p.GenerateFinalReport(context.Background())
	if err != nil {
		t.Fatalf("GenerateFinalReport() error = %v", err)
	}
	if report != "" {
		t.Fatalf("expected empty report over empty history, got %q", report)
	}
}
