package summary

import (
	"testing"
	"time"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/internal/pipeline/translate"
	translateprovider "github.com/univoice/core/pkg/provider/translate"
	translatemock "github.com/univoice/core/pkg/provider/translate/mock"
)

func TestSummarizer_WordThresholdTriggersSummaryWithTranslation(t *testing.T) {
	bus := event.NewBus("corr")
	sub := bus.Subscribe("watcher", 32)
	defer sub.Close()

	mockProvider := &translatemock.Provider{
		CompleteResponse: &translateprovider.CompletionResponse{Content: "A concise summary."},
		StreamChunks:     []translateprovider.Chunk{{Text: "A concise summary."}},
	}
	rt := translate.NewRealtime(mockProvider, bus, nil, "es")

	s := New(mockProvider, rt, bus, "en", time.Hour, 3)
	defer s.Close()

	s.Add("one two three four")

	var got Summary
	found := false
	for i := 0; i < 8 && !found; i++ {
		select {
		case e := <-sub.Events():
			if e.Kind == event.KindSummary {
				got = e.Payload.(Summary)
				found = true
			}
		case <-time.After(time.Second):
		}
	}
	if !found {
		t.Fatal("expected a summary event")
	}
	if got.Text != "A concise summary." {
		t.Fatalf("Text = %q", got.Text)
	}
	if got.Translation != "A concise summary." {
		t.Fatalf("Translation = %q, want the mock provider's streamed content", got.Translation)
	}
}

func TestSummarizer_IntervalFiresWithoutWordThreshold(t *testing.T) {
	bus := event.NewBus("corr")
	sub := bus.Subscribe("watcher", 32)
	defer sub.Close()

	mockProvider := &translatemock.Provider{
		CompleteResponse: &translateprovider.CompletionResponse{Content: "Timed summary."},
	}
	rt := translate.NewRealtime(mockProvider, bus, nil, "es")

	s := New(mockProvider, rt, bus, "en", 30*time.Millisecond, 0)
	defer s.Close()

	s.Add("some accumulated words")

	for i := 0; i < 8; i++ {
		select {
		case e := <-sub.Events():
			if e.Kind == event.KindSummary {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for interval-triggered summary")
		}
	}
	t.Fatal("never observed a summary event")
}

func TestSummarizer_EmptyBufferNeverFires(t *testing.T) {
	bus := event.NewBus("corr")
	sub := bus.Subscribe("watcher", 8)
	defer sub.Close()

	mockProvider := &translatemock.Provider{}
	rt := translate.NewRealtime(mockProvider, bus, nil, "es")
	s := New(mockProvider, rt, bus, "en", 20*time.Millisecond, 0)
	defer s.Close()

	select {
	case e := <-sub.Events():
		if e.Kind == event.KindSummary {
			t.Fatalf("unexpected summary event on empty buffer: %+v", e)
		}
	case <-time.After(80 * time.Millisecond):
	}
}
