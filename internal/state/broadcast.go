// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import "sync/atomic"

// Broadcast hands out a channel that is closed the next time Notify is
// called. Every Notify installs a fresh channel, so a goroutine that wants to
// hear about the next change must call Wait again after waking. The zero value
// is ready to use.
type Broadcast struct {
	ch atomic.Pointer[chan struct{}]
}

// Wait returns the channel that will be closed by the next call to Notify.
func (b *Broadcast) Wait() <-chan struct{} {
	p := b.ch.Load()
	if p == nil {
		ch := make(chan struct{})
		if b.ch.CompareAndSwap(nil, &ch) {
			return ch
		}
		p = b.ch.Load()
	}
	return *p
}

// Notify wakes every goroutine that obtained a channel from Wait before this
// call.
func (b *Broadcast) Notify() {
	ch := make(chan struct{})
	if old := b.ch.Swap(&ch); old != nil {
		close(*old)
	}
}
