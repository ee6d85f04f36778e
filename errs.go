// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"fmt"

	"github.com/petenewcomb/assembly-go/internal/cerr"
)

// ErrQueueClosed is returned by [Line.Submit] and [Line.TrySubmit] once
// [Line.Shutdown] has been called.
const ErrQueueClosed = cerr.Error("assembly line closed")

// ErrQueueFull is returned by [Line.TrySubmit] when the line already holds as
// many incomplete jobs as its queue capacity allows.
const ErrQueueFull = cerr.Error("assembly line full")

// ErrCancelled is the error of a job that was cancelled before its start phase
// ran, either by [Job.Cancel] or by a non-draining [Line.Shutdown].
const ErrCancelled = cerr.Error("job cancelled before start")

// ErrPanic is wrapped by the [PhaseError] of a phase that panicked.
const ErrPanic = cerr.Error("phase panicked")

// Phase failure sentinels. A [PhaseError] matches the one for its phase under
// [errors.Is].
const (
	ErrStartFailed   = cerr.Error("start phase failed")
	ErrExecuteFailed = cerr.Error("execute phase failed")
	ErrEndFailed     = cerr.Error("end phase failed")
)

// PhaseError records the failure of one phase of a job. It unwraps to the
// error returned by the phase.
type PhaseError struct {
	Seq   uint64
	Phase Phase // Starting, Executing or Committing
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("job %d: %s: %v", e.Seq, e.sentinel(), e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the failure sentinel for the phase that failed.
func (e *PhaseError) Is(target error) bool {
	s := e.sentinel()
	return s != nil && target == s
}

func (e *PhaseError) sentinel() error {
	switch e.Phase {
	case Starting:
		return ErrStartFailed
	case Executing:
		return ErrExecuteFailed
	case Committing:
		return ErrEndFailed
	default:
		return nil
	}
}
