package paragraph

import (
	"testing"
	"time"

	"github.com/univoice/core/internal/event"
)

func TestBuilder_AccumulatesUntilSilenceThresholdAfterMinDuration(t *testing.T) {
	bus := event.NewBus("corr")
	sub := bus.Subscribe("watcher", 8)
	defer sub.Close()

	b := New(bus).WithParams(30*time.Millisecond, time.Hour, 40*time.Millisecond)
	b.Add(Entry{ID: "a", Text: "hello"})

	select {
	case e := <-sub.Events():
		t.Fatalf("unexpected early emission: %+v", e)
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case e := <-sub.Events():
		out := e.Payload.(Paragraph)
		if out.Text != "hello" {
			t.Fatalf("Text = %q, want 'hello'", out.Text)
		}
		if out.WordCount != 1 {
			t.Fatalf("WordCount = %d, want 1", out.WordCount)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for silence-triggered emission")
	}
}

func TestBuilder_SilenceBeforeMinDurationDoesNotEmit(t *testing.T) {
	bus := event.NewBus("corr")
	sub := bus.Subscribe("watcher", 8)
	defer sub.Close()

	b := New(bus).WithParams(time.Hour, time.Hour, 20*time.Millisecond)
	b.Add(Entry{ID: "a", Text: "hello"})

	select {
	case e := <-sub.Events():
		t.Fatalf("unexpected emission before min_duration met: %+v", e)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestBuilder_MaxDurationForcesEmitOnAdd(t *testing.T) {
	bus := event.NewBus("corr")
	sub := bus.Subscribe("watcher", 8)
	defer sub.Close()

	b := New(bus).WithParams(5*time.Millisecond, 20*time.Millisecond, time.Hour)
	b.Add(Entry{ID: "a", Text: "hello"})
	time.Sleep(30 * time.Millisecond)
	b.Add(Entry{ID: "b", Text: "world"})

	select {
	case e := <-sub.Events():
		out := e.Payload.(Paragraph)
		if len(out.EntryIDs) != 2 {
			t.Fatalf("EntryIDs = %v, want 2 entries", out.EntryIDs)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for max-duration emission")
	}
}

func TestBuilder_FlushEmitsUnconditionallyBeforeMinDuration(t *testing.T) {
	bus := event.NewBus("corr")
	sub := bus.Subscribe("watcher", 8)
	defer sub.Close()

	b := New(bus).WithParams(time.Hour, time.Hour, time.Hour)
	b.Add(Entry{ID: "a", Text: "partial paragraph"})
	b.Flush()

	select {
	case e := <-sub.Events():
		out := e.Payload.(Paragraph)
		if out.Text != "partial paragraph" {
			t.Fatalf("Text = %q", out.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Flush emission")
	}
}

func TestBuilder_FlushOnEmptyIsNoop(t *testing.T) {
	bus := event.NewBus("corr")
	sub := bus.Subscribe("watcher", 8)
	defer sub.Close()

	b := New(bus)
	b.Flush()

	select {
	case e := <-sub.Events():
		t.Fatalf("unexpected event on empty flush: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
