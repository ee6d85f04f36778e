// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasm

import (
	"context"

	"github.com/petenewcomb/assembly-go"
)

// Instrumented combines tracing, metrics, and logging into a single wrapper.
// Spans enclose the metrics and logging of each phase, so log records emitted
// by a phase fall within its span.
func Instrumented(name string, a assembly.Assembly) assembly.Assembly {
	return Traced(name, Metered(name, Logged(name, a)))
}

// Submit propagates the trace context of ctx into an instrumented a and submits
// it to line.
//
// Example:
//
//	job, err := otasm.Submit(ctx, line, "append-record", rec)
//	if err != nil {
//		return err
//	}
//	return job.Wait(ctx)
func Submit(ctx context.Context, line *assembly.Line, name string, a assembly.Assembly) (*assembly.Job, error) {
	return line.Submit(ctx, Propagated(ctx, Instrumented(name, a)))
}
