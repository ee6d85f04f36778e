// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"cmp"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/addrummond/heap"
	"github.com/gammazero/deque"
	"github.com/petenewcomb/assembly-go/internal/state"
	"go.uber.org/zap"
)

// Line is an ordered-commit job pipeline. It runs the start phase of each
// submitted [Assembly] in submission order, runs the execute phases
// concurrently, and then runs the end phases in submission order again, telling
// each one whether it is the last job in the line so that commits can be
// batched.
//
// All start and end phases run on a single scheduler goroutine owned by the
// line, which is what makes them mutually exclusive. Execute phases each run on
// their own goroutine.
//
// A Line must be created with [NewLine] and should always be shut down with
// [Line.Shutdown], otherwise its scheduler goroutine is leaked.
type Line struct {
	ctx              context.Context
	logger           *zap.Logger
	drainTimeout     time.Duration
	concurrencyLimit atomic.Int64
	lifecycle        state.Lifecycle
	wake             state.Notifier
	room             state.Broadcast
	wg               sync.WaitGroup
	stats            counters

	// Scheduler bookkeeping. Never held while a phase runs.
	mu            sync.Mutex
	nextSeq       uint64 // sequence to assign to the next submission
	head          uint64 // oldest sequence whose commit slot is unresolved
	queueCapacity int
	incomplete    int
	executing     int
	admit         deque.Deque[*Job] // submitted, not yet started
	commits       heap.Heap[commitSlot, heap.Min]

	// Incomplete jobs in sequence order; both ends are trimmed while complete.
	// Taken after mu when both are needed.
	tailMu sync.RWMutex
	window deque.Deque[*Job]
}

// A commitSlot resolves one sequence number. job is nil when the slot resolves
// without a commit because the job failed or was cancelled.
type commitSlot struct {
	seq uint64
	job *Job
}

func (a *commitSlot) Cmp(b *commitSlot) int {
	return cmp.Compare(a.seq, b.seq)
}

// NewLine creates a line and starts its scheduler. ctx is the root of the
// contexts passed to every phase; canceling it is how a caller asks running
// phases to give up; it does not by itself shut the line down.
func NewLine(ctx context.Context, opts ...Option) *Line {
	if ctx == nil {
		panic("context must be non-nil")
	}
	o := lineOptions{
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Line{
		ctx:           ctx,
		logger:        o.logger,
		drainTimeout:  o.drainTimeout,
		nextSeq:       1,
		head:          1,
		queueCapacity: o.queueCapacity,
	}
	l.concurrencyLimit.Store(int64(o.concurrencyLimit))
	l.lifecycle.Init()
	l.wake.Init()
	go l.run()
	return l
}

// SetConcurrencyLimit changes the maximum number of concurrently executing
// jobs. Zero means no limit. Lowering the limit never interrupts jobs that are
// already executing; it only delays further starts.
func (l *Line) SetConcurrencyLimit(n int) {
	if n < 0 {
		panic("concurrency limit is negative")
	}
	l.concurrencyLimit.Store(int64(n))
	l.wake.Notify()
}

// Submit appends a job to the line and returns its handle. It returns
// [ErrQueueClosed] once shutdown has begun. If the line was created with a
// queue capacity and is full, Submit blocks until a job completes, the line
// shuts down, or ctx is done.
//
// Submit must not block from within a start or end phase of the same line,
// since only the scheduler running that phase can make room. It panics if it
// detects that situation; use [Line.TrySubmit] there instead.
func (l *Line) Submit(ctx context.Context, a Assembly) (*Job, error) {
	return l.submit(ctx, a, true)
}

// TrySubmit is like [Line.Submit] but fails with [ErrQueueFull] instead of
// blocking when the line is at capacity.
func (l *Line) TrySubmit(ctx context.Context, a Assembly) (*Job, error) {
	return l.submit(ctx, a, false)
}

func (l *Line) submit(ctx context.Context, a Assembly, block bool) (*Job, error) {
	if a == nil {
		panic("assembly must be non-nil")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Take the room channel before looking, so that a completion between
		// the look and the wait below is not missed.
		roomCh := l.room.Wait()
		j, err := l.enqueue(a)
		if err == nil {
			l.wake.Notify()
			return j, nil
		}
		if err != ErrQueueFull || !block {
			return nil, err
		}
		if l.isSerialPhaseContext(ctx) {
			panic("Submit would block within a start or end phase; use TrySubmit instead")
		}
		select {
		case <-roomCh:
		case <-l.lifecycle.Closed():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Line) enqueue(a Assembly) (*Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lifecycle.IsOpen() {
		return nil, ErrQueueClosed
	}
	if l.queueCapacity > 0 && l.incomplete >= l.queueCapacity {
		return nil, ErrQueueFull
	}

	j := newJob(l, l.nextSeq, a)
	l.nextSeq++
	l.incomplete++
	l.admit.PushBack(j)

	l.tailMu.Lock()
	l.window.PushBack(j)
	l.tailMu.Unlock()

	l.stats.submitted.Add(1)
	return j, nil
}

func (l *Line) isSerialPhaseContext(ctx context.Context) bool {
	j, ok := JobFromContext(ctx)
	if !ok || j.line != l {
		return false
	}
	p := j.Phase()
	return p == Starting || p == Committing
}

// isLast reports whether no incomplete job with a sequence greater than seq
// exists.
func (l *Line) isLast(seq uint64) bool {
	l.tailMu.RLock()
	defer l.tailMu.RUnlock()
	if l.window.Len() == 0 {
		return true
	}
	return l.window.Back().seq <= seq
}

// Shutdown stops the line from accepting new jobs and waits for the ones
// already submitted to complete.
//
// With drain set, every submitted job runs to completion. Without it, jobs
// whose start phase has not begun are failed with [ErrCancelled]; jobs that
// have started still run to completion, since the line never interrupts a
// running phase.
//
// The wait is bounded by ctx and by the drain timeout, if one was configured.
// If either expires Shutdown returns the context error, and the line keeps
// finishing its jobs in the background; [Line.Done] reports when it is done.
// Shutdown may be called more than once.
func (l *Line) Shutdown(ctx context.Context, drain bool) error {
	var popped []*Job
	var cancelled []bool

	l.mu.Lock()
	first := l.lifecycle.Close()
	if !drain {
		for l.admit.Len() > 0 {
			j := l.admit.PopFront()
			ok := j.Phase() == Created
			if ok {
				j.setPhase(Failed)
			}
			popped = append(popped, j)
			cancelled = append(cancelled, ok)
		}
	}
	pending := l.incomplete
	l.mu.Unlock()

	if first {
		l.logger.Info("assembly line shutting down",
			zap.Bool("drain", drain),
			zap.Int("pending", pending),
			zap.Int("cancelled", len(popped)))
	}
	// Wake blocked submitters so they can observe the closure.
	l.room.Notify()

	if len(popped) > 0 {
		for i, j := range popped {
			if cancelled[i] {
				l.cancelled(j)
			} else {
				// Cancelled by Job.Cancel, which completes it momentarily.
				<-j.Done()
			}
		}
		l.mu.Lock()
		for _, j := range popped {
			heap.PushOrderable(&l.commits, commitSlot{seq: j.seq})
		}
		l.mu.Unlock()
	}
	l.wake.Notify()

	if l.drainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.drainTimeout)
		defer cancel()
	}
	select {
	case <-l.lifecycle.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed once the line has been shut down and
// every job submitted to it has completed.
func (l *Line) Done() <-chan struct{} {
	return l.lifecycle.Done()
}

func (l *Line) cancel(j *Job) bool {
	l.mu.Lock()
	ok := j.Phase() == Created
	if ok {
		j.setPhase(Failed)
	}
	l.mu.Unlock()
	if ok {
		l.cancelled(j)
		l.wake.Notify()
	}
	return ok
}

func (l *Line) cancelled(j *Job) {
	l.stats.cancelled.Add(1)
	l.logger.Info("assembly job cancelled", zap.Uint64("seq", j.seq))
	l.complete(j, ErrCancelled)
}

// run is the scheduler. It is the only goroutine that calls StartJob and
// EndJob.
func (l *Line) run() {
	for {
		if l.step() {
			continue
		}
		if l.finished() {
			l.wg.Wait()
			l.lifecycle.Finish()
			return
		}
		<-l.wake.C()
	}
}

// step performs one unit of scheduling work, preferring commits over starts.
// Returns false if there was nothing to do.
func (l *Line) step() bool {
	l.mu.Lock()
	for {
		slot, ok := heap.Peek(&l.commits)
		if !ok || slot.seq != l.head {
			break
		}
		heap.PopOrderable(&l.commits)
		if slot.job == nil {
			l.head++
			continue
		}
		l.mu.Unlock()
		l.commit(slot.job)
		l.mu.Lock()
		l.head++
		l.mu.Unlock()
		return true
	}

	if l.admit.Len() == 0 || !l.underLimit() {
		l.mu.Unlock()
		return false
	}
	j := l.admit.PopFront()
	if j.Phase() != Created {
		// Cancelled while waiting to start. Its slot must not resolve before
		// its completion is visible.
		l.mu.Unlock()
		<-j.Done()
		l.mu.Lock()
		heap.PushOrderable(&l.commits, commitSlot{seq: j.seq})
		l.mu.Unlock()
		return true
	}
	j.setPhase(Starting)
	l.executing++
	l.mu.Unlock()
	l.start(j)
	return true
}

func (l *Line) underLimit() bool {
	limit := l.concurrencyLimit.Load()
	return limit == 0 || int64(l.executing) < limit
}

func (l *Line) finished() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.lifecycle.IsOpen() && l.head == l.nextSeq
}

func (l *Line) start(j *Job) {
	if err := l.runPhase(j, Starting, j.asm.StartJob); err != nil {
		l.fail(j, err)
		l.mu.Lock()
		l.executing--
		heap.PushOrderable(&l.commits, commitSlot{seq: j.seq})
		l.mu.Unlock()
		return
	}
	j.setPhase(Executing)
	l.wg.Add(1)
	go l.execute(j)
}

func (l *Line) execute(j *Job) {
	defer l.wg.Done()

	err := l.runPhase(j, Executing, j.asm.ExecuteJob)
	slot := commitSlot{seq: j.seq}
	if err != nil {
		l.fail(j, err)
	} else {
		j.setPhase(AwaitingCommit)
		slot.job = j
	}

	l.mu.Lock()
	l.executing--
	heap.PushOrderable(&l.commits, slot)
	l.mu.Unlock()
	l.wake.Notify()
}

func (l *Line) commit(j *Job) {
	j.setPhase(Committing)
	lastJob := l.isLast(j.seq)
	err := l.runPhase(j, Committing, func(ctx context.Context) error {
		return j.asm.EndJob(ctx, lastJob)
	})
	l.stats.commits.Add(1)
	if lastJob {
		l.stats.lastCommits.Add(1)
	}
	if err != nil {
		l.fail(j, err)
		return
	}
	if ce := l.logger.Check(zap.DebugLevel, "assembly job committed"); ce != nil {
		ce.Write(zap.Uint64("seq", j.seq), zap.Bool("last_job", lastJob))
	}
	l.complete(j, nil)
}

// runPhase calls fn with the job's context, converting a panic into an error
// and wrapping any error in a PhaseError.
func (l *Line) runPhase(j *Job, p Phase, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if err != nil {
			err = &PhaseError{Seq: j.seq, Phase: p, Err: err}
		}
	}()
	return fn(j.ctx)
}

func (l *Line) fail(j *Job, err error) {
	l.stats.failed.Add(1)
	l.logger.Error("assembly job failed",
		zap.Uint64("seq", j.seq),
		zap.Stringer("phase", j.Phase()),
		zap.Error(err))
	l.complete(j, err)
}

// complete marks j complete, releasing its waiters. Returns false, doing
// nothing, if j was already complete.
func (l *Line) complete(j *Job, err error) bool {
	l.tailMu.Lock()
	if !j.gate.claim() {
		l.tailMu.Unlock()
		return false
	}
	if err != nil {
		j.setPhase(Failed)
	} else {
		j.setPhase(Complete)
	}
	for l.window.Len() > 0 && l.window.Front().gate.claimed() {
		l.window.PopFront()
	}
	for l.window.Len() > 0 && l.window.Back().gate.claimed() {
		l.window.PopBack()
	}
	l.tailMu.Unlock()

	l.mu.Lock()
	l.incomplete--
	l.mu.Unlock()
	l.stats.completed.Add(1)

	j.gate.release(err)
	l.room.Notify()
	return true
}
