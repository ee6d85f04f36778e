// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package otasm provides logging, metrics, and OpenTelemetry tracing for
// [assembly.Assembly] implementations. Each wrapper returns an Assembly that
// behaves exactly like the one it wraps, observing each phase as it passes
// through.
package otasm

import (
	"context"

	"github.com/petenewcomb/assembly-go"
)

// Phase names used in log messages, metric names, and span names.
const (
	phaseStart   = "start"
	phaseExecute = "execute"
	phaseEnd     = "end"
)

// seqOf returns the sequence number of the job whose phase is running in ctx,
// or zero if ctx does not belong to a job.
func seqOf(ctx context.Context) uint64 {
	if j, ok := assembly.JobFromContext(ctx); ok {
		return j.Seq()
	}
	return 0
}
