// Package router implements the Segment Router (C3): a pure dispatcher that
// fans out ASR segments to their downstream consumers based on finality
// (spec §4.3).
package router

import (
	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/pkg/provider/asr"
)

// Sinks are the downstream consumers a final or interim segment is routed
// to. Any sink left nil is simply skipped, so callers may wire only the
// components they need (useful in tests).
type Sinks struct {
	// Translate receives every final segment for draft translation (C4).
	Translate func(asr.Segment)

	// Sentence receives every final segment for sentence grouping (C7).
	Sentence func(asr.Segment)

	// Paragraph receives every final segment for paragraph grouping (C8).
	Paragraph func(asr.Segment)

	// History receives every final segment to append to the pending queue
	// (C13).
	History func(asr.Segment)

	// Coalesce receives every interim segment keyed by slot (C5). Slot is
	// always "original" for raw ASR interims per spec §4.3.
	Coalesce func(slot string, seg asr.Segment)
}

// Router is the Segment Router. It holds no state of its own beyond its
// output wiring and the event bus it publishes to.
type Router struct {
	bus   *event.Bus
	sinks Sinks
}

// New creates a Router publishing partial/final events on bus and dispatching
// to sinks.
func New(bus *event.Bus, sinks Sinks) *Router {
	return &Router{bus: bus, sinks: sinks}
}

// Route dispatches a single ASR segment per spec §4.3: always publishes a
// partial or final event, then fans out to the appropriate sinks.
func (r *Router) Route(seg asr.Segment) {
	if seg.IsFinal {
		r.bus.Publish(event.KindFinal, seg)
		if r.sinks.Translate != nil {
			r.sinks.Translate(seg)
		}
		if r.sinks.Sentence != nil {
			r.sinks.Sentence(seg)
		}
		if r.sinks.Paragraph != nil {
			r.sinks.Paragraph(seg)
		}
		if r.sinks.History != nil {
			r.sinks.History(seg)
		}
		return
	}

	r.bus.Publish(event.KindPartial, seg)
	if r.sinks.Coalesce != nil {
		r.sinks.Coalesce("original", seg)
	}
}
