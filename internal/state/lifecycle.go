// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync/atomic"
)

// lifecycleStage represents the possible stages in a line's lifecycle
type lifecycleStage int32

const (
	// stageOpen indicates that the line is accepting new jobs
	stageOpen lifecycleStage = iota
	// stageClosed indicates that the line no longer accepts jobs but those
	// already submitted are still being processed
	stageClosed
	// stageDone indicates that every submitted job has been resolved and the
	// scheduler has exited
	stageDone
)

// Lifecycle tracks the Open → Closed → Done progression of an assembly line.
// Transitions only move forward and each one happens at most once.
type Lifecycle struct {
	currentStage atomic.Int32 // Contains a lifecycleStage value
	closed       chan struct{}
	done         chan struct{}
}

// Init initializes an uninitialized Lifecycle to the Open stage, and must be
// called exactly once before any other methods. An Init method is provided
// instead of a New function because Lifecycle is expected to be an embedded
// field of the line.
func (lc *Lifecycle) Init() {
	lc.currentStage.Store(int32(stageOpen))
	lc.closed = make(chan struct{})
	lc.done = make(chan struct{})
}

// Close attempts to transition from Open to Closed. Returns true if this call
// performed the transition.
func (lc *Lifecycle) Close() bool {
	if lc.currentStage.CompareAndSwap(int32(stageOpen), int32(stageClosed)) {
		close(lc.closed)
		return true
	}
	return false
}

// Finish attempts to transition from Closed to Done. Returns true if this call
// performed the transition. Panics if the lifecycle is still Open.
func (lc *Lifecycle) Finish() bool {
	if lifecycleStage(lc.currentStage.Load()) == stageOpen {
		panic("lifecycle finished before it was closed")
	}
	if lc.currentStage.CompareAndSwap(int32(stageClosed), int32(stageDone)) {
		close(lc.done)
		return true
	}
	return false
}

// IsOpen reports whether the lifecycle is still in the Open stage.
func (lc *Lifecycle) IsOpen() bool {
	return lifecycleStage(lc.currentStage.Load()) == stageOpen
}

// Closed returns the channel that will be closed when the lifecycle leaves the
// Open stage.
func (lc *Lifecycle) Closed() <-chan struct{} {
	return lc.closed
}

// Done returns the channel that will be closed when the lifecycle reaches Done.
func (lc *Lifecycle) Done() <-chan struct{} {
	return lc.done
}
