// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package wal

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	syncs int
}

func (c *countingSyncer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *countingSyncer) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncs++
	return nil
}

// An append written while a later one was in flight must still become
// durable when that later append fails instead of syncing.
func TestAppendSyncsItselfWhenSuccessorFails(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	var cs countingSyncer
	log := New(ctx, &cs)

	secondEncoding := make(chan struct{})
	failSecond := make(chan struct{})
	log.encode = func(rec *Record) ([]byte, error) {
		switch rec.LSN {
		case 1:
			// Hold the first record until the second is in flight, so the
			// first is written without being told it is last.
			<-secondEncoding
		case 2:
			close(secondEncoding)
			<-failSecond
			return nil, ErrTooLarge
		}
		return encodeFrame(rec)
	}

	type result struct {
		lsn uint64
		err error
	}
	first := make(chan result, 1)
	go func() {
		lsn, err := log.Append(ctx, []byte("first"))
		first <- result{lsn, err}
	}()
	chk.Eventually(func() bool {
		return log.LineStats().Submitted == 1
	}, 5*time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := log.Append(ctx, []byte("second"))
		second <- err
	}()

	// The first record is written but not synced while the second is held.
	chk.Eventually(func() bool {
		return log.Stats().Appends == 1
	}, 5*time.Second, time.Millisecond)
	st := log.Stats()
	chk.Zero(st.Syncs)
	chk.Zero(st.Durable)
	chk.Zero(log.LineStats().LastCommits)
	select {
	case r := <-first:
		chk.FailNow("first append returned before it was durable", "%+v", r)
	case <-time.After(20 * time.Millisecond):
	}

	close(failSecond)
	chk.ErrorIs(<-second, ErrTooLarge)
	r := <-first
	chk.NoError(r.err)
	chk.Equal(uint64(1), r.lsn)

	st = log.Stats()
	chk.Equal(uint64(1), st.Syncs)
	chk.GreaterOrEqual(st.Durable, uint64(1))

	chk.NoError(log.Close(ctx))
	cs.mu.Lock()
	defer cs.mu.Unlock()
	chk.Equal(1, cs.syncs)
}
