// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"sync/atomic"
)

// completionGate is the once-only completion signal of a job. The error is
// written before done is closed, so any goroutine that has observed done
// closed may read err without further synchronization.
type completionGate struct {
	completed atomic.Bool
	err       error
	done      chan struct{}
}

func (g *completionGate) init() {
	g.done = make(chan struct{})
}

// claim marks the gate complete without yet releasing waiters, so that the
// caller can update state that must be consistent with the completion first.
// Only one call returns true, and only that caller may call release.
// Completing a gate is always a claim followed by a release.
func (g *completionGate) claim() bool {
	return g.completed.CompareAndSwap(false, true)
}

func (g *completionGate) release(err error) {
	g.err = err
	close(g.done)
}

// claimed reports whether the gate has been claimed. It becomes true before
// the error is visible; use result for the outcome.
func (g *completionGate) claimed() bool {
	return g.completed.Load()
}

// result returns true and the error if the gate has been released.
func (g *completionGate) result() (bool, error) {
	select {
	case <-g.done:
		return true, g.err
	default:
		return false, nil
	}
}
