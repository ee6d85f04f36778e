// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package timerp pools the timers used for bounded waits.
package timerp

import (
	"sync"
	"time"
)

// This implementation relies on [Go 1.23+ behavior]: Reset and Stop leave no
// stale value in the timer's channel, so a pooled timer can be reused without
// draining it first.
//
// [Go 1.23+ behavior]: https://pkg.go.dev/time#NewTimer

var pool = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()
		return t
	},
}

// Get returns a running timer that fires after d. The timer must be returned
// with Put once the caller stops selecting on it.
func Get(d time.Duration) *time.Timer {
	t := pool.Get().(*time.Timer)
	t.Reset(d)
	return t
}

// Put stops t and returns it to the pool.
func Put(t *time.Timer) {
	t.Stop()
	pool.Put(t)
}
