// Package paragraph implements the Paragraph Builder (C8): groups finals (or
// sentences) into paragraphs using a minimum/maximum duration and a silence
// threshold, unconditionally flushing on session end (spec §4.8).
package paragraph

import (
	"strings"
	"sync"
	"time"

	"github.com/univoice/core/internal/event"
)

const (
	defaultMinDuration      = 10000 * time.Millisecond
	defaultMaxDuration      = 40000 * time.Millisecond
	defaultSilenceThreshold = 2000 * time.Millisecond
)

// Entry is a single unit (final segment or Sentence) folded into a paragraph.
type Entry struct {
	ID   string
	Text string
}

// Paragraph is the Paragraph Builder's output (spec §3).
type Paragraph struct {
	Text       string
	EntryIDs   []string
	WordCount  int
	StartedAt  time.Time
	EndedAt    time.Time
}

// Builder accumulates Entries into Paragraphs per the configured
// min/max/silence-threshold parameters (spec §4.8).
type Builder struct {
	bus *event.Bus

	minDuration      time.Duration
	maxDuration      time.Duration
	silenceThreshold time.Duration

	mu        sync.Mutex
	entries   []Entry
	startedAt time.Time
	timer     *time.Timer
}

// New creates a Builder with the spec default parameters.
func New(bus *event.Bus) *Builder {
	return &Builder{
		bus:              bus,
		minDuration:      defaultMinDuration,
		maxDuration:      defaultMaxDuration,
		silenceThreshold: defaultSilenceThreshold,
	}
}

// WithParams overrides the default min/max/silence-threshold durations.
func (b *Builder) WithParams(min, max, silence time.Duration) *Builder {
	b.minDuration, b.maxDuration, b.silenceThreshold = min, max, silence
	return b
}

// Add folds a new entry into the current paragraph, starting a new
// paragraph if idle (spec §4.8: "start-of-paragraph on first final after
// idle"), and emits immediately if the max-duration bound is already
// exceeded.
func (b *Builder) Add(e Entry) {
	b.mu.Lock()
	now := time.Now()
	if len(b.entries) == 0 {
		b.startedAt = now
	}
	b.entries = append(b.entries, e)
	b.rearmSilenceTimerLocked()

	elapsed := now.Sub(b.startedAt)
	shouldEmit := elapsed >= b.minDuration && elapsed >= b.maxDuration
	b.mu.Unlock()

	if shouldEmit {
		b.emit()
	}
}

// Flush unconditionally emits any non-empty paragraph, used on session end
// (spec §4.8: "never drop segments; if min_duration is not yet met at
// session end, still flush").
func (b *Builder) Flush() {
	b.emit()
}

func (b *Builder) rearmSilenceTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.silenceThreshold, b.onSilence)
}

// onSilence fires after silenceThreshold has elapsed with no further Add.
// If the paragraph has met min_duration it is emitted; otherwise it keeps
// accumulating, waiting for the next Add or an explicit Flush.
func (b *Builder) onSilence() {
	b.mu.Lock()
	if len(b.entries) == 0 {
		b.mu.Unlock()
		return
	}
	elapsed := time.Since(b.startedAt)
	ready := elapsed >= b.minDuration
	b.mu.Unlock()

	if ready {
		b.emit()
	}
}

func (b *Builder) emit() {
	b.mu.Lock()
	if len(b.entries) == 0 {
		b.mu.Unlock()
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	entries := b.entries
	started := b.startedAt
	b.entries = nil
	b.mu.Unlock()

	ids := make([]string, len(entries))
	texts := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		texts[i] = e.Text
	}
	text := strings.Join(texts, " ")

	b.bus.Publish(event.KindParagraph, Paragraph{
		Text:      text,
		EntryIDs:  ids,
		WordCount: len(strings.Fields(text)),
		StartedAt: started,
		EndedAt:   time.Now(),
	})
}
