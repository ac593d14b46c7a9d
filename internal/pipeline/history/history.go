// Package history implements the Ring Buffer / History (C13): an append-only
// log of finalized {source, translation, timestamp} triples, soft-capped at
// 180 minutes and compacted to retain paragraph-level entries while
// discarding isolated segment entries older than 30 minutes (spec §4.13).
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/univoice/core/internal/fingerprint"
)

const (
	softCap           = 180 * time.Minute
	protectedWindow   = 30 * time.Minute
)

// Record is a single History Block entry (spec §3 "History Block").
type Record struct {
	ID          string
	ParagraphID string
	Source      string
	Translation string
	Tier        fingerprint.Tier
	Timestamp   time.Time
}

// History is an append-only, mutex-guarded log of finalized records, tier-
// gated for translation replacement and periodically compacted (spec §4.13).
type History struct {
	mu      sync.Mutex
	records []Record
	byID    map[string]int // ID -> index into records, for O(1) translation replacement
}

// New creates an empty History.
func New() *History {
	return &History{byID: make(map[string]int)}
}

// Append adds a new finalized record. If a record with the same ID already
// exists, its source/translation/tier are overwritten in place rather than
// duplicating the entry.
func (h *History) Append(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if idx, ok := h.byID[rec.ID]; ok {
		h.records[idx] = rec
		return
	}
	h.byID[rec.ID] = len(h.records)
	h.records = append(h.records, rec)
}

// ReplaceTranslation applies a higher-tier translation to every record whose
// ID is in ids, but only if tier is at least as high as the record's
// currently stored tier (spec §4.9 ordering guarantee: "consumers must
// accept replacements only if the incoming tier is >= the tier currently
// stored").
func (h *History) ReplaceTranslation(ids []string, tier fingerprint.Tier, translation string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range ids {
		idx, ok := h.byID[id]
		if !ok {
			continue
		}
		if tier.Rank() < h.records[idx].Tier.Rank() {
			continue
		}
		h.records[idx].Translation = translation
		h.records[idx].Tier = tier
	}
}

// RangeByTime returns records with Timestamp in [from, to], in chronological
// order.
func (h *History) RangeByTime(from, to time.Time) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Record, 0)
	for _, r := range h.records {
		if (r.Timestamp.Equal(from) || r.Timestamp.After(from)) && (r.Timestamp.Equal(to) || r.Timestamp.Before(to)) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// RangeByParagraph returns every record belonging to paragraphID, in
// chronological order.
func (h *History) RangeByParagraph(paragraphID string) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Record, 0)
	for _, r := range h.records {
		if r.ParagraphID == paragraphID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// All returns every record in chronological order. Intended for report
// generation (spec §C "Final report generation").
func (h *History) All() []Record {
	return h.RangeByTime(time.Time{}, time.Now().Add(24*time.Hour))
}

// Clear empties the history, used by clearHistory() (spec §6).
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
	h.byID = make(map[string]int)
}

// Compact discards isolated (non-paragraph) entries older than
// protectedWindow once the log approaches softCap, retaining every
// paragraph-level entry and every entry within the last 30 minutes
// unconditionally (spec §4.13: "never loses finalized entries within the
// last 30 minutes").
func (h *History) Compact() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) == 0 {
		return
	}
	span := h.records[len(h.records)-1].Timestamp.Sub(h.records[0].Timestamp)
	if span < softCap {
		return
	}

	now := h.records[len(h.records)-1].Timestamp
	cutoff := now.Add(-protectedWindow)

	kept := h.records[:0:0]
	for _, r := range h.records {
		// Every record sharing a paragraph's ID is part of that paragraph
		// (pipeline.go assigns the same ParagraphID to all of a paragraph's
		// segments, not just the first), so all of them are protected, not
		// only the one whose own ID happens to equal the ParagraphID.
		belongsToParagraph := r.ParagraphID != ""
		if r.Timestamp.After(cutoff) || belongsToParagraph {
			kept = append(kept, r)
		}
	}

	h.records = kept
	h.byID = make(map[string]int, len(kept))
	for i, r := range kept {
		h.byID[r.ID] = i
	}
}
