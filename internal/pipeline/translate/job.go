// Package translate implements the Realtime Translator (C4) and High-Quality
// Translator (C9): bounded-concurrency job queues over a [translate.Provider]
// that enforce at-most-one in-flight job per fingerprint, soft/hard
// first-token deadlines, a single-retry policy, and tier-based supersession
// of lower-quality drafts (spec §4.4, §4.9).
package translate

import (
	"time"

	"github.com/univoice/core/internal/fingerprint"
)

// JobState is the lifecycle state of a Translation Job (spec §3).
type JobState string

const (
	StateQueued     JobState = "queued"
	StateInFlight   JobState = "in_flight"
	StateStreaming  JobState = "streaming"
	StateCompleted  JobState = "completed"
	StateTimedOut   JobState = "timed_out"
	StateFailed     JobState = "failed"
	StateSuperseded JobState = "superseded"
)

// Job is a single Translation Job (spec §3).
type Job struct {
	Fingerprint fingerprint.Fingerprint
	SegmentID   string
	SourceText  string
	Tier        fingerprint.Tier
	TargetLang  string
	StartedAt   time.Time
	TimeoutAt   time.Time
	State       JobState

	cancel func()
}

// Cancel requests cancellation of the job's in-flight request, if any. Safe
// to call on a job with no cancel function set.
func (j *Job) Cancel() {
	if j.cancel != nil {
		j.cancel()
	}
}
