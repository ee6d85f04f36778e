// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package wal

import (
	"github.com/petenewcomb/assembly-go"
	"go.uber.org/zap"
)

// Option configures a [Log].
type Option func(*logOptions)

type logOptions struct {
	logger   *zap.Logger
	firstLSN uint64
	lineOpts []assembly.Option
}

// WithLogger sets the logger used by the log and by its line.
func WithLogger(logger *zap.Logger) Option {
	if logger == nil {
		panic("logger must be non-nil")
	}
	return func(o *logOptions) {
		o.logger = logger
	}
}

// WithFirstLSN sets the sequence number given to the first record appended to
// a log created with [New]. It is ignored by [Open], which continues from the
// records already in the file.
func WithFirstLSN(lsn uint64) Option {
	if lsn == 0 {
		panic("first LSN must be positive")
	}
	return func(o *logOptions) {
		o.firstLSN = lsn
	}
}

// WithLineOptions passes options through to the log's assembly line, for
// example to bound how many appends may be in flight.
func WithLineOptions(opts ...assembly.Option) Option {
	return func(o *logOptions) {
		o.lineOpts = append(o.lineOpts, opts...)
	}
}
