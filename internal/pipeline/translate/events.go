package translate

import "github.com/univoice/core/internal/fingerprint"

// Update is the payload of a translation_update event: an incremental
// translation result, either a realtime streaming delta or a higher-tier
// refinement replacing one or more segments (spec §4.4, §4.9).
type Update struct {
	SegmentID string
	Tier      fingerprint.Tier
	Text      string
	Tentative bool
	// Replaces lists the segment IDs a refinement supersedes. Empty for
	// realtime drafts, which replace nothing.
	Replaces []string
}

// Complete is the payload of a translation_complete event: the terminal
// signal for a Translation Job, successful or not (spec §7: "even a failed
// translation emits a terminal translation_complete so the UI can finalize
// display").
type Complete struct {
	SegmentID string
	Tier      fingerprint.Tier
	Text      string
	Err       error
}

// Dropped is the payload of an error{translation_dropped} event emitted when
// the bounded job queue overflows (spec §5 backpressure).
type Dropped struct {
	SegmentID string
	Tier      fingerprint.Tier
}
