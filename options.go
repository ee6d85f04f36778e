// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"time"

	"go.uber.org/zap"
)

// An Option configures a [Line] at construction time.
type Option func(*lineOptions)

type lineOptions struct {
	concurrencyLimit int
	queueCapacity    int
	drainTimeout     time.Duration
	logger           *zap.Logger
}

// WithConcurrencyLimit bounds the number of jobs whose execute phase may run at
// the same time. Zero, the default, means no bound. See
// [Line.SetConcurrencyLimit] to change the limit later.
func WithConcurrencyLimit(n int) Option {
	if n < 0 {
		panic("concurrency limit is negative")
	}
	return func(o *lineOptions) { o.concurrencyLimit = n }
}

// WithQueueCapacity bounds the number of incomplete jobs the line holds. When
// the bound is reached [Line.Submit] blocks and [Line.TrySubmit] fails with
// [ErrQueueFull]. Zero, the default, means no bound.
func WithQueueCapacity(n int) Option {
	if n < 0 {
		panic("queue capacity is negative")
	}
	return func(o *lineOptions) { o.queueCapacity = n }
}

// WithDrainTimeout bounds how long [Line.Shutdown] waits for outstanding jobs.
// Zero, the default, means Shutdown is bounded only by its context.
func WithDrainTimeout(d time.Duration) Option {
	if d < 0 {
		panic("drain timeout is negative")
	}
	return func(o *lineOptions) { o.drainTimeout = d }
}

// WithLogger sets the logger the line reports phase failures, cancellations
// and shutdown to. The default is [zap.L] as of the call to [NewLine].
func WithLogger(logger *zap.Logger) Option {
	if logger == nil {
		panic("logger must be non-nil")
	}
	return func(o *lineOptions) { o.logger = logger }
}

// WithConfig applies every setting in cfg. It panics if cfg holds a value
// [LoadConfig] would have rejected.
func WithConfig(cfg Config) Option {
	if err := cfg.validate(); err != nil {
		panic("invalid config: " + err.Error())
	}
	return func(o *lineOptions) {
		o.concurrencyLimit = int(cfg.ConcurrencyLimit)
		o.queueCapacity = int(cfg.QueueCapacity)
		o.drainTimeout = cfg.DrainTimeout
	}
}
