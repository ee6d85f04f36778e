// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package wal is an append-only write-ahead log that uses an
// [assembly.Line] for group commit. Appends are encoded concurrently and
// written in LSN order, and a single flush and sync covers every record
// written since the previous one.
package wal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/petenewcomb/assembly-go"
	"github.com/petenewcomb/assembly-go/internal/state"
	"go.uber.org/zap"
)

// WriteSyncer is the destination of a log. *os.File satisfies it. If it also
// implements io.Closer, [Log.Close] closes it.
type WriteSyncer interface {
	io.Writer
	Sync() error
}

// Log is a write-ahead log. It is safe for concurrent use.
type Log struct {
	line   *assembly.Line
	logger *zap.Logger
	w      WriteSyncer

	// Only touched by start phases, which the line serializes.
	nextLSN uint64

	encode func(*Record) ([]byte, error)

	// Guards the buffered writer, which end phases and Sync share.
	mu      sync.Mutex
	bw      *bufio.Writer
	written uint64 // LSN of the last record handed to bw

	durable atomic.Uint64 // LSN of the last record known to be synced
	synced  state.Broadcast
	closed  atomic.Bool

	appends atomic.Uint64
	syncs   atomic.Uint64
	bytes   atomic.Uint64
}

// Stats is a snapshot of a log's counters.
type Stats struct {
	Appends uint64 // records written
	Syncs   uint64 // flush and sync calls made on the underlying writer
	Bytes   uint64 // framed bytes written
	Durable uint64 // LSN of the last synced record
}

// New creates a log that writes to w. Records are numbered from 1 unless
// [WithFirstLSN] says otherwise. ctx is the root context of the log's line.
func New(ctx context.Context, w WriteSyncer, opts ...Option) *Log {
	if w == nil {
		panic("writer must be non-nil")
	}
	o := logOptions{
		logger:   zap.L(),
		firstLSN: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return newLog(ctx, w, o.firstLSN, o)
}

func newLog(ctx context.Context, w WriteSyncer, firstLSN uint64, o logOptions) *Log {
	lineOpts := append([]assembly.Option{assembly.WithLogger(o.logger)}, o.lineOpts...)
	l := &Log{
		line:    assembly.NewLine(ctx, lineOpts...),
		logger:  o.logger,
		w:       w,
		nextLSN: firstLSN,
		encode:  encodeFrame,
		bw:      bufio.NewWriter(w),
		written: firstLSN - 1,
	}
	l.durable.Store(firstLSN - 1)
	return l
}

// Open opens or creates the log file at path and positions it after the last
// intact record. A record torn by a crash at the end of the file is cut off;
// corruption anywhere else is an error.
func Open(ctx context.Context, path string, opts ...Option) (*Log, error) {
	o := logOptions{
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	var last uint64
	valid, err := scan(f, func(rec Record) error {
		last = rec.LSN
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrTruncated) {
			_ = f.Close()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		o.logger.Warn("wal torn tail removed",
			zap.String("path", path),
			zap.Int64("valid_bytes", valid),
			zap.Error(err))
		if err := f.Truncate(valid); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if _, err := f.Seek(valid, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}

	o.logger.Info("wal opened",
		zap.String("path", path),
		zap.Uint64("next_lsn", last+1))
	return newLog(ctx, f, last+1, o), nil
}

// Append adds a record holding payload to the log and returns its LSN once the
// record is durable.
//
// Concurrent appends share syncs: a record written while later appends are
// still in flight is synced by whichever of them is written last. If ctx ends
// first Append returns its error, but the record may still be written.
func (l *Log) Append(ctx context.Context, payload []byte) (uint64, error) {
	a := &appendJob{log: l, payload: payload}
	j, err := l.line.Submit(ctx, a)
	if err != nil {
		if errors.Is(err, assembly.ErrQueueClosed) {
			return 0, ErrClosed
		}
		return 0, err
	}
	if err := j.Wait(ctx); err != nil {
		// Appends blocked waiting for this one to be synced must recheck.
		l.synced.Notify()
		return 0, err
	}
	return a.lsn, l.awaitDurable(ctx, j, a.lsn)
}

func (l *Log) awaitDurable(ctx context.Context, j *assembly.Job, lsn uint64) error {
	for {
		ch := l.synced.Wait()
		if l.durable.Load() >= lsn {
			return nil
		}
		// No append still in flight will sync on this one's behalf.
		if j.IsLast() {
			return l.Sync()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sync flushes buffered records and syncs the underlying writer.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	if l.durable.Load() >= l.written {
		return nil
	}
	if err := l.bw.Flush(); err != nil {
		return err
	}
	if err := l.w.Sync(); err != nil {
		return err
	}
	l.syncs.Add(1)
	l.durable.Store(l.written)
	l.synced.Notify()
	return nil
}

func (l *Log) write(a *appendJob, sync bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.bw.Write(a.frame); err != nil {
		return err
	}
	l.written = a.lsn
	l.appends.Add(1)
	l.bytes.Add(uint64(len(a.frame)))
	if !sync {
		return nil
	}
	return l.syncLocked()
}

// Close waits for in-flight appends, syncs, and closes the underlying writer if
// it is an io.Closer. Appends made after Close begins fail with [ErrClosed].
// If ctx ends before in-flight appends finish, the writer is closed anyway and
// those appends fail. Calling Close again returns nil.
func (l *Log) Close(ctx context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.line.Shutdown(ctx, true)
	if err == nil {
		err = l.Sync()
	}
	if c, ok := l.w.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	l.synced.Notify()
	st := l.Stats()
	l.logger.Info("wal closed",
		zap.Uint64("appends", st.Appends),
		zap.Uint64("syncs", st.Syncs),
		zap.Uint64("durable_lsn", st.Durable),
		zap.Error(err))
	return err
}

// Stats returns a snapshot of the log's counters.
func (l *Log) Stats() Stats {
	return Stats{
		Appends: l.appends.Load(),
		Syncs:   l.syncs.Load(),
		Bytes:   l.bytes.Load(),
		Durable: l.durable.Load(),
	}
}

// LineStats returns the counters of the log's assembly line.
func (l *Log) LineStats() assembly.Stats {
	return l.line.Stats()
}

type appendJob struct {
	log     *Log
	payload []byte
	lsn     uint64
	frame   []byte
}

func (a *appendJob) StartJob(ctx context.Context) error {
	a.lsn = a.log.nextLSN
	a.log.nextLSN++
	return nil
}

func (a *appendJob) ExecuteJob(ctx context.Context) error {
	frame, err := a.log.encode(&Record{LSN: a.lsn, Payload: a.payload})
	if err != nil {
		return err
	}
	a.frame = frame
	return nil
}

func (a *appendJob) EndJob(ctx context.Context, lastJob bool) error {
	return a.log.write(a, lastJob)
}
