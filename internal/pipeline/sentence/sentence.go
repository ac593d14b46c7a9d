// Package sentence implements the Sentence Combiner (C7): a buffer of final
// ASR segments, flushed immediately on every addition to minimize data
// loss, and unconditionally on session-end force emission (spec §4.7).
package sentence

import (
	"strings"
	"sync"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/pkg/provider/asr"
)

// Sentence is the Sentence Combiner's output (spec §3).
type Sentence struct {
	SourceText string
	SegmentIDs []string
}

// Combiner buffers final segments and emits Sentences (spec §4.7).
type Combiner struct {
	bus *event.Bus

	mu  sync.Mutex
	buf []asr.Segment
}

// New creates a Combiner publishing sentence events on bus.
func New(bus *event.Bus) *Combiner {
	return &Combiner{bus: bus}
}

// Add appends a final segment to the buffer and emits immediately (spec
// §4.7: "the implementation chooses immediate emission to minimize data
// loss").
func (c *Combiner) Add(seg asr.Segment) {
	c.mu.Lock()
	c.buf = append(c.buf, seg)
	c.mu.Unlock()

	c.emit()
}

// ForceEmit flushes any buffered segments unconditionally, used on session
// end (spec §4.7).
func (c *Combiner) ForceEmit() {
	c.emit()
}

func (c *Combiner) emit() {
	c.mu.Lock()
	if len(c.buf) == 0 {
		c.mu.Unlock()
		return
	}
	buf := c.buf
	c.buf = nil
	c.mu.Unlock()

	ids := make([]string, len(buf))
	texts := make([]string, len(buf))
	for i, seg := range buf {
		ids[i] = seg.ID
		texts[i] = strings.TrimSpace(seg.Text)
	}

	c.bus.Publish(event.KindSentence, Sentence{
		SourceText: strings.Join(texts, " "),
		SegmentIDs: ids,
	})
}
