// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/petenewcomb/assembly-go/internal/timerp"
)

// Job is the caller's handle on an [Assembly] submitted to a [Line]. It is
// returned by [Line.Submit] and [Line.TrySubmit] and is safe for concurrent use.
// The line owns the job's state; the handle only observes it, waits for it,
// and may cancel a job that has not started yet.
//
// Completion order is not submission order in general. Jobs that commit
// complete in submission order, but a job that fails or is cancelled completes
// as soon as the failure happens, possibly ahead of earlier jobs.
type Job struct {
	line  *Line
	seq   uint64
	asm   Assembly
	ctx   context.Context
	phase atomic.Int32 // Contains a Phase value
	gate  completionGate
}

func newJob(l *Line, seq uint64, a Assembly) *Job {
	j := &Job{
		line: l,
		seq:  seq,
		asm:  a,
	}
	j.ctx = withJob(l.ctx, j)
	j.gate.init()
	return j
}

// Seq returns the job's sequence number. Sequence numbers start at one and
// define the order in which start and end phases run.
func (j *Job) Seq() uint64 {
	return j.seq
}

// Phase returns the job's current phase.
func (j *Job) Phase() Phase {
	return Phase(j.phase.Load())
}

func (j *Job) setPhase(p Phase) {
	j.phase.Store(int32(p))
}

// Completed reports whether the job has completed, successfully or not. Once
// it returns true, [Job.Err] returns the job's final error and [Job.Done] is
// closed.
func (j *Job) Completed() bool {
	ok, _ := j.gate.result()
	return ok
}

// Done returns a channel that is closed when the job completes.
func (j *Job) Done() <-chan struct{} {
	return j.gate.done
}

// Err returns the job's error once it has completed: nil if it committed
// successfully, a [*PhaseError] if a phase failed, or [ErrCancelled]. Before
// completion Err returns nil.
func (j *Job) Err() error {
	_, err := j.gate.result()
	return err
}

// Wait blocks until the job completes or ctx is done. It returns the job's
// error (see [Job.Err]) or, if ctx ended the wait first, the context's error.
// Abandoning a wait has no effect on the job itself.
func (j *Job) Wait(ctx context.Context) error {
	if ok, err := j.gate.result(); ok {
		return err
	}
	select {
	case <-j.gate.done:
		return j.gate.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout is like [Job.Wait] with a bound on how long to wait instead of a
// context. It returns false if the job had not completed when d elapsed, in
// which case the error is nil.
func (j *Job) WaitTimeout(d time.Duration) (bool, error) {
	if ok, err := j.gate.result(); ok {
		return true, err
	}
	t := timerp.Get(d)
	defer timerp.Put(t)
	select {
	case <-j.gate.done:
		return true, j.gate.err
	case <-t.C:
		return false, nil
	}
}

// IsLast reports whether no job with a greater sequence number than this one
// has been submitted and left incomplete. The answer can change as soon as it
// is returned if other goroutines are submitting; asking does not change it.
func (j *Job) IsLast() bool {
	return j.line.isLast(j.seq)
}

// Cancel fails the job with [ErrCancelled] if its start phase has not begun,
// and reports whether it did so. A job that has started cannot be cancelled by
// the line; its execute phase should watch its context instead.
func (j *Job) Cancel() bool {
	return j.line.cancel(j)
}
