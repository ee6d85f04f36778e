// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"sync/atomic"
)

// Stats is a snapshot of a [Line]'s counters. The counters are read
// individually, so a snapshot taken while jobs are moving may be slightly
// inconsistent with itself.
type Stats struct {
	Submitted   uint64 // Jobs accepted by Submit or TrySubmit
	Completed   uint64 // Jobs completed with any outcome
	Failed      uint64 // Jobs completed with a phase error
	Cancelled   uint64 // Jobs cancelled before starting
	Commits     uint64 // EndJob calls
	LastCommits uint64 // EndJob calls with lastJob set
	Executing   int    // Jobs currently in their start or execute phase
	Pending     int    // Jobs submitted and not yet completed
}

type counters struct {
	submitted   atomic.Uint64
	completed   atomic.Uint64
	failed      atomic.Uint64
	cancelled   atomic.Uint64
	commits     atomic.Uint64
	lastCommits atomic.Uint64
}

// Stats returns a snapshot of the line's counters.
func (l *Line) Stats() Stats {
	l.mu.Lock()
	executing, pending := l.executing, l.incomplete
	l.mu.Unlock()
	return Stats{
		Submitted:   l.stats.submitted.Load(),
		Completed:   l.stats.completed.Load(),
		Failed:      l.stats.failed.Load(),
		Cancelled:   l.stats.cancelled.Load(),
		Commits:     l.stats.commits.Load(),
		LastCommits: l.stats.lastCommits.Load(),
		Executing:   executing,
		Pending:     pending,
	}
}
