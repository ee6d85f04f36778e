// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

// Notifier is a level-triggered wakeup for a single consumer goroutine. Any
// number of Notify calls made while the consumer is busy collapse into one
// pending wakeup, so the consumer must re-examine all of its inputs each time
// it wakes.
type Notifier struct {
	ch chan struct{}
}

// Init must be called exactly once before any other method.
func (n *Notifier) Init() {
	n.ch = make(chan struct{}, 1)
}

// Notify records a pending wakeup. Never blocks.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
		// A wakeup is already pending.
	}
}

// C returns the channel on which the consumer receives wakeups.
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}
