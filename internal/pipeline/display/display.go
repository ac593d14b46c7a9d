// Package display implements the Three-Line Display Sync (C6): a sliding
// window of up to three Display Pairs at fixed opacities, shifted forward as
// new pairs arrive and mutated in place for updates to the current pair
// (spec §4.6).
package display

import (
	"strings"
	"sync"
	"time"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/internal/pipeline/coalesce"
)

// Position is a Display Pair's slot in the three-line window.
type Position string

const (
	PositionOldest Position = "oldest"
	PositionOlder  Position = "older"
	PositionRecent Position = "recent"
)

// Opacity returns the fixed opacity for a position (spec §3 invariant).
func (p Position) Opacity() float64 {
	switch p {
	case PositionOldest:
		return 0.3
	case PositionOlder:
		return 0.6
	case PositionRecent:
		return 1.0
	default:
		return 0
	}
}

// Pair is a single Display Pair (spec §3).
type Pair struct {
	PairID          string
	SourceText      string
	TranslationText string
	Position        Position
	CreatedAt       time.Time
	PromotedAt      time.Time
}

// Snapshot is the full three-line window, oldest first, published on every
// update (spec §4.6: "Emits display_update events with the full three-line
// snapshot").
type Snapshot struct {
	Pairs []Pair
}

// Sync maintains the three-line window and mutates it from coalesced
// updates. Display pairs are owned exclusively by Sync and mutated only via
// coalesced input (spec §3 ownership note).
type Sync struct {
	bus *event.Bus

	mu    sync.Mutex
	pairs []Pair // oldest-first, len 0..3
}

// New creates an empty display Sync publishing snapshots on bus.
func New(bus *event.Bus) *Sync {
	return &Sync{bus: bus}
}

// HandleCoalesced applies a coalesced update. SlotKey "original" mutates or
// creates the source-text side of the recent pair; any other slot key is
// treated as a translation update for the pair identified by e.PairID.
func (s *Sync) HandleCoalesced(e coalesce.Emission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.SlotKey == "original" {
		s.applySource(e.PairID, e.Text)
	} else {
		s.applyTranslation(e.PairID, e.Translation)
	}
	s.publish()
}

// applySource mutates the recent pair in place if it already represents
// pairID, otherwise shifts the window and inserts a new recent pair (spec
// §4.6 rules 1-3). Must be called with s.mu held.
func (s *Sync) applySource(pairID, text string) {
	if len(s.pairs) > 0 && s.pairs[len(s.pairs)-1].PairID == pairID {
		s.pairs[len(s.pairs)-1].SourceText = text
		return
	}
	s.shiftIn(Pair{
		PairID:     pairID,
		SourceText: text,
		CreatedAt:  time.Now(),
	})
}

// applyTranslation updates the translation side of whichever pair currently
// holds pairID, independent of the source side (spec §4.6 rule: "a pair's
// translation side updates independently of the source side"). If no pair
// with that ID exists in the window (already scrolled off), the update is
// dropped.
func (s *Sync) applyTranslation(pairID, translation string) {
	for i := range s.pairs {
		if s.pairs[i].PairID == pairID {
			s.pairs[i].TranslationText = translation
			return
		}
	}
}

// shiftIn shifts recent->older->oldest, dropping any overflow, and inserts
// newPair as the new recent. Must be called with s.mu held.
func (s *Sync) shiftIn(newPair Pair) {
	now := time.Now()
	switch len(s.pairs) {
	case 0:
		newPair.Position = PositionRecent
		newPair.PromotedAt = now
		s.pairs = []Pair{newPair}
	case 1:
		s.pairs[0].Position = PositionOlder
		newPair.Position = PositionRecent
		newPair.PromotedAt = now
		s.pairs = append(s.pairs, newPair)
	default:
		// len == 2 or 3: keep only the most recent 2 existing pairs, shift
		// them down to oldest/older, drop anything older than that.
		kept := s.pairs[len(s.pairs)-2:]
		kept[0].Position = PositionOldest
		kept[1].Position = PositionOlder
		newPair.Position = PositionRecent
		newPair.PromotedAt = now
		s.pairs = append(append([]Pair{}, kept...), newPair)
	}
}

// Snapshot returns the current three-line window, oldest first.
func (s *Sync) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pair, len(s.pairs))
	copy(out, s.pairs)
	return Snapshot{Pairs: out}
}

func (s *Sync) publish() {
	out := make([]Pair, len(s.pairs))
	copy(out, s.pairs)
	s.bus.Publish(event.KindDisplayUpdate, Snapshot{Pairs: out})
}

// Clear resets the display window, used by clearHistory() (spec §6).
func (s *Sync) Clear() {
	s.mu.Lock()
	s.pairs = nil
	s.mu.Unlock()
	s.publish()
}

// String renders the window as a plain three-line block for debugging/CLI
// output, oldest first.
func (sn Snapshot) String() string {
	var b strings.Builder
	for _, p := range sn.Pairs {
		b.WriteString(p.SourceText)
		if p.TranslationText != "" {
			b.WriteString(" — ")
			b.WriteString(p.TranslationText)
		}
		b.WriteString("\n")
	}
	return b.String()
}
