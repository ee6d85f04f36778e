// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"context"
)

// An Assembly is one unit of work submitted to a [Line]. The line calls its
// three methods in order, at most once each.
//
// StartJob and EndJob are serial: the line never runs either of them at the
// same time as any other job's StartJob or EndJob, and it calls each in strict
// submission order. StartJob is the place for cheap, order-sensitive setup
// such as assigning a sequence number. It must not block on I/O, since while
// it runs no other job can start or commit (execute phases already launched
// keep running).
//
// ExecuteJob runs on its own goroutine once StartJob has returned, concurrently
// with the execute phases of other jobs and with no ordering guarantee. It may
// block and it should honor cancellation of ctx. If it returns an error the
// job fails and EndJob is not called.
//
// EndJob commits the job. It is called once every earlier job has either
// committed or failed, which may be well after ExecuteJob returned. lastJob is
// true iff at the moment EndJob is called no later job has been submitted and
// left incomplete. This is the hook for group commit: an EndJob that must
// flush something expensive can skip the flush when lastJob is false and rely
// on the later job's flush, which is ordered after it, to cover both.
//
// Callers that depend on group commit for durability should be aware of two
// consequences of that rule. First, if the later job that made an EndJob see
// lastJob == false subsequently fails before committing, nothing flushes on
// the earlier job's behalf. Second, if EndJob returns an error the line still
// moves on to the next job, trading commit atomicity for liveness; a caller
// needing all-or-nothing batches must treat any end phase failure as poisoning
// the later commits that relied on it.
//
// A phase that panics is treated as having returned an error wrapping
// [ErrPanic].
type Assembly interface {
	StartJob(ctx context.Context) error
	ExecuteJob(ctx context.Context) error
	EndJob(ctx context.Context, lastJob bool) error
}

// Funcs adapts three plain functions to the [Assembly] interface. A nil
// function is treated as a phase that does nothing and succeeds.
type Funcs struct {
	Start   func(ctx context.Context) error
	Execute func(ctx context.Context) error
	End     func(ctx context.Context, lastJob bool) error
}

func (f Funcs) StartJob(ctx context.Context) error {
	if f.Start == nil {
		return nil
	}
	return f.Start(ctx)
}

func (f Funcs) ExecuteJob(ctx context.Context) error {
	if f.Execute == nil {
		return nil
	}
	return f.Execute(ctx)
}

func (f Funcs) EndJob(ctx context.Context, lastJob bool) error {
	if f.End == nil {
		return nil
	}
	return f.End(ctx, lastJob)
}
