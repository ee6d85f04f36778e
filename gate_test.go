// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompletionGateOnce(t *testing.T) {
	chk := require.New(t)
	var g completionGate
	g.init()

	ok, err := g.result()
	chk.False(ok)
	chk.NoError(err)

	chk.True(g.claim())
	chk.False(g.claim())
	chk.True(g.claimed())

	// Claimed but not yet released: the outcome is not visible.
	ok, _ = g.result()
	chk.False(ok)

	first := errors.New("first")
	g.release(first)
	ok, err = g.result()
	chk.True(ok)
	chk.Same(first, err)
	chk.False(g.claim())
}

func TestCompletionGateReleasesAllWaiters(t *testing.T) {
	chk := require.New(t)
	var g completionGate
	g.init()

	const numWaiters = 8
	var released atomic.Int32
	var wg sync.WaitGroup
	for range numWaiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-g.done
			released.Add(1)
		}()
	}

	// Concurrent claims race; exactly one wins and releases.
	var winners atomic.Int32
	var cwg sync.WaitGroup
	for range 4 {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			if g.claim() {
				winners.Add(1)
				g.release(nil)
			}
		}()
	}
	cwg.Wait()
	wg.Wait()
	chk.Equal(int32(1), winners.Load())
	chk.Equal(int32(numWaiters), released.Load())
}

func TestJobCompletedImpliesOutcome(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	l := NewLine(ctx)
	defer func() { chk.NoError(l.Shutdown(ctx, true)) }()

	for range 200 {
		j, err := l.Submit(ctx, Funcs{
			Execute: func(context.Context) error { return errors.New("boom") },
		})
		chk.NoError(err)
		for !j.Completed() {
			runtime.Gosched()
		}
		chk.ErrorIs(j.Err(), ErrExecuteFailed)
		select {
		case <-j.Done():
		default:
			chk.FailNow("completed job's done channel still open")
		}
	}
}

func TestLineCompleteIsIdempotent(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	l := NewLine(ctx)

	j, err := l.Submit(ctx, Funcs{})
	chk.NoError(err)
	chk.NoError(j.Wait(ctx))
	before := l.Stats()

	// Completing again changes nothing: not the outcome, not the counters, and
	// not the line's ability to commit later jobs in order.
	chk.False(l.complete(j, errors.New("late")))
	chk.NoError(j.Err())
	chk.Equal(Complete, j.Phase())
	chk.Equal(before, l.Stats())

	var ends []uint64
	var jobs []*Job
	for range 3 {
		j, err := l.Submit(ctx, Funcs{
			End: func(ctx context.Context, lastJob bool) error {
				j, _ := JobFromContext(ctx)
				ends = append(ends, j.Seq())
				return nil
			},
		})
		chk.NoError(err)
		jobs = append(jobs, j)
	}
	for _, j := range jobs {
		ok, err := j.WaitTimeout(5 * time.Second)
		chk.True(ok)
		chk.NoError(err)
		chk.False(l.complete(j, nil))
	}
	chk.Equal([]uint64{2, 3, 4}, ends)

	chk.NoError(l.Shutdown(ctx, true))
	l.mu.Lock()
	chk.Equal(uint64(5), l.head)
	chk.Zero(l.incomplete)
	l.mu.Unlock()
}
