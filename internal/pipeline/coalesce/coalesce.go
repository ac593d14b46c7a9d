// Package coalesce implements the Stream Coalescer (C5): per display-slot
// debouncing, force-commit, punctuation-triggered immediate commit, and
// near-duplicate suppression over rapid interim updates.
package coalesce

import (
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/univoice/core/internal/event"
)

const (
	defaultDebounce     = 100 * time.Millisecond
	defaultForceWindow  = 500 * time.Millisecond
	defaultGCIdle       = 5 * time.Second
	nearDuplicateJaroWT = 0.97
)

var terminalPunctuation = []string{".", "?", "!", "。", "、", "！", "？"}

// Update is a pending change to a display slot: new source text and/or
// translation text. Zero-value Translation leaves the translation side
// unchanged relative to the last emission for slots that only update the
// source side (spec §4.6: "a pair's translation side updates independently
// of the source side").
type Update struct {
	SlotKey string
	// PairID identifies the Display Pair this update belongs to (spec §3),
	// letting C6 correlate an "original" slot update and a
	// "translation:"+segment_id slot update into the same pair.
	PairID      string
	Text        string
	Translation string
	IsFinal     bool
}

// Emission is the coalesced output published to the event bus.
type Emission struct {
	SlotKey     string
	PairID      string
	Text        string
	Translation string
	Version     uint64
}

// SlotMetrics tracks per-slot coalescing statistics (spec §4.5).
type SlotMetrics struct {
	TotalSegments       uint64
	EmittedCount        uint64
	DuplicateSuppressions uint64
	avgHoldMs           float64
}

// AvgHoldMs returns the running average hold time, in milliseconds, between
// a slot's pending update and its emission.
func (m *SlotMetrics) AvgHoldMs() float64 { return m.avgHoldMs }

type slot struct {
	mu sync.Mutex

	pending     Update
	hasPending  bool
	pendingSince time.Time
	version     uint64

	lastEmittedText        string
	lastEmittedTranslation string
	lastActivity           time.Time

	metrics SlotMetrics
}

// Coalescer debounces and deduplicates per-slot updates before publishing
// them as coalesce/display events (spec §4.5).
type Coalescer struct {
	bus *event.Bus

	debounce    time.Duration
	forceWindow time.Duration
	gcIdle      time.Duration

	mu    sync.Mutex
	slots map[string]*slot

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Coalescer publishing emissions on bus with the default
// timing parameters (100ms debounce, 500ms force window, 5s slot GC idle).
func New(bus *event.Bus) *Coalescer {
	c := &Coalescer{
		bus:         bus,
		debounce:    defaultDebounce,
		forceWindow: defaultForceWindow,
		gcIdle:      defaultGCIdle,
		slots:       make(map[string]*slot),
		stopCh:      make(chan struct{}),
	}
	c.wg.Add(1)
	go c.gcLoop()
	return c
}

// Close stops the background GC loop. Safe to call once.
func (c *Coalescer) Close() {
	close(c.stopCh)
	c.wg.Wait()
}

// Submit records an update for a slot, emitting immediately if the update
// ends in terminal punctuation or is final. Otherwise the update is emitted
// by a debounce timer goroutine scheduled per pending change, or by the
// force timer started once per pending window when that window has aged
// past the force window.
func (c *Coalescer) Submit(u Update) {
	s := c.slotFor(u.SlotKey)

	s.mu.Lock()
	s.metrics.TotalSegments++
	s.lastActivity = time.Now()

	if isDuplicate(s, u) {
		s.metrics.DuplicateSuppressions++
		s.mu.Unlock()
		return
	}

	// pendingSince marks the start of the current un-emitted window: it is
	// only (re)set when a slot transitions from emitted to pending, so the
	// force timer below measures age since the oldest un-emitted change, not
	// since the most recent Submit.
	startingNewWindow := !s.hasPending
	s.pending = u
	s.hasPending = true
	if startingNewWindow {
		s.pendingSince = time.Now()
	}
	s.mu.Unlock()

	if u.IsFinal || endsWithTerminalPunctuation(u.Text) {
		c.emit(u.SlotKey, s)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		timer := time.NewTimer(c.debounce)
		defer timer.Stop()
		select {
		case <-timer.C:
			c.emitIfStillPending(u.SlotKey, s, u.Text)
		case <-c.stopCh:
		}
	}()

	// One force-commit timer per pending window: it fires regardless of
	// further Submits replacing the pending text, so a continuously updated
	// slot still commits at the force window (spec §4.5 rule 3).
	if startingNewWindow {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			timer := time.NewTimer(c.forceWindow)
			defer timer.Stop()
			select {
			case <-timer.C:
				c.forceEmitIfAged(u.SlotKey, s)
			case <-c.stopCh:
			}
		}()
	}
}

// ForceEmit flushes a slot's pending update immediately, regardless of
// debounce state or how long the change has been pending (explicit
// force_emit()). Unknown slots are ignored.
func (c *Coalescer) ForceEmit(slotKey string) {
	c.mu.Lock()
	s, ok := c.slots[slotKey]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.emit(slotKey, s)
}

// Metrics returns a copy of the current metrics for a slot, or the zero
// value if the slot does not exist.
func (c *Coalescer) Metrics(slotKey string) SlotMetrics {
	c.mu.Lock()
	s, ok := c.slots[slotKey]
	c.mu.Unlock()
	if !ok {
		return SlotMetrics{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (c *Coalescer) slotFor(key string) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{lastActivity: time.Now()}
		c.slots[key] = s
	}
	return s
}

// emitIfStillPending emits the debounced update only if no newer pending
// change has superseded the text this timer was scheduled for (a later
// Submit already emitted, or a newer pending value is queued behind it).
func (c *Coalescer) emitIfStillPending(slotKey string, s *slot, scheduledForText string) {
	s.mu.Lock()
	stillCurrent := s.hasPending && s.pending.Text == scheduledForText
	s.mu.Unlock()
	if stillCurrent {
		c.emit(slotKey, s)
	}
}

// forceEmitIfAged unconditionally emits whatever is currently pending once
// the slot's oldest un-emitted change has aged past the force window, even
// if newer Submits have replaced the pending text since (spec §4.5 rule 3).
func (c *Coalescer) forceEmitIfAged(slotKey string, s *slot) {
	s.mu.Lock()
	aged := s.hasPending && time.Since(s.pendingSince) >= c.forceWindow
	s.mu.Unlock()
	if aged {
		c.emit(slotKey, s)
	}
}

func (c *Coalescer) emit(slotKey string, s *slot) {
	s.mu.Lock()
	if !s.hasPending {
		s.mu.Unlock()
		return
	}
	u := s.pending
	hold := time.Since(s.pendingSince)
	s.hasPending = false
	s.version++
	s.lastEmittedText = u.Text
	s.lastEmittedTranslation = u.Translation
	s.metrics.EmittedCount++
	n := float64(s.metrics.EmittedCount)
	s.metrics.avgHoldMs = s.metrics.avgHoldMs + (float64(hold.Milliseconds())-s.metrics.avgHoldMs)/n
	version := s.version
	s.mu.Unlock()

	c.bus.Publish(event.KindCoalesced, Emission{
		SlotKey:     slotKey,
		PairID:      u.PairID,
		Text:        u.Text,
		Translation: u.Translation,
		Version:     version,
	})
}

func (c *Coalescer) gcLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.gcIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.collectIdle()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coalescer) collectIdle() {
	cutoff := time.Now().Add(-c.gcIdle)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, s := range c.slots {
		s.mu.Lock()
		idle := s.lastActivity.Before(cutoff) && !s.hasPending
		s.mu.Unlock()
		if idle {
			delete(c.slots, key)
		}
	}
}

// isDuplicate reports whether u is identical (or near-identical per
// Jaro-Winkler similarity, absorbing ASR interim jitter) to the slot's last
// emitted (text, translation) tuple. Must be called with s.mu held.
func isDuplicate(s *slot, u Update) bool {
	if u.Text == s.lastEmittedText && u.Translation == s.lastEmittedTranslation {
		return true
	}
	if s.lastEmittedText == "" || u.Text == "" {
		return false
	}
	return matchr.JaroWinkler(u.Text, s.lastEmittedText, false) >= nearDuplicateJaroWT &&
		u.Translation == s.lastEmittedTranslation
}

func endsWithTerminalPunctuation(text string) bool {
	trimmed := strings.TrimRightFunc(text, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' })
	if trimmed == "" {
		return false
	}
	for _, p := range terminalPunctuation {
		if strings.HasSuffix(trimmed, p) {
			return true
		}
	}
	return false
}
