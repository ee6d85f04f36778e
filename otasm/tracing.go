// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasm

import (
	"context"

	"github.com/petenewcomb/assembly-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on every phase span.
const (
	SeqKey     = attribute.Key("assembly.seq")
	LastJobKey = attribute.Key("assembly.last_job")
)

// Traced adds a span to each phase of an assembly, named "<name>.<phase>".
// Every span carries the job's sequence number; the end span also carries
// whether the commit was the last job in the line. A failed phase sets the
// span's status to error.
//
// Phases run in contexts derived from the line's context rather than the
// submitter's, so spans are parented under whatever span the line's context
// carries. Wrap with [Propagated] to parent them under the submitter's span
// instead.
func Traced(name string, a assembly.Assembly) assembly.Assembly {
	if a == nil {
		panic("assembly must be non-nil")
	}
	return &traced{name: name, next: a}
}

type traced struct {
	name string
	next assembly.Assembly
}

func (t *traced) StartJob(ctx context.Context) error {
	return t.trace(ctx, phaseStart, nil, t.next.StartJob)
}

func (t *traced) ExecuteJob(ctx context.Context) error {
	return t.trace(ctx, phaseExecute, nil, t.next.ExecuteJob)
}

func (t *traced) EndJob(ctx context.Context, lastJob bool) error {
	return t.trace(ctx, phaseEnd, []attribute.KeyValue{LastJobKey.Bool(lastJob)},
		func(ctx context.Context) error {
			return t.next.EndJob(ctx, lastJob)
		})
}

func (t *traced) trace(
	ctx context.Context,
	phase string,
	extra []attribute.KeyValue,
	fn func(context.Context) error,
) error {
	tracer := otel.Tracer("otasm")
	ctx, span := tracer.Start(ctx, t.name+"."+phase,
		trace.WithAttributes(SeqKey.Int64(int64(seqOf(ctx)))),
		trace.WithAttributes(extra...))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
