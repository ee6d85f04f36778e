// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasm

import (
	"context"

	"github.com/petenewcomb/assembly-go"
	"go.opentelemetry.io/otel/trace"
)

// Propagated captures the span context carried by ctx, typically the context
// of the code about to submit a, and makes it the parent of every phase of a.
// Phases otherwise see only the trace context of the line they run on.
//
// If ctx carries no valid span context, a is returned unchanged.
func Propagated(ctx context.Context, a assembly.Assembly) assembly.Assembly {
	if a == nil {
		panic("assembly must be non-nil")
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return a
	}
	return &propagated{parent: sc, next: a}
}

type propagated struct {
	parent trace.SpanContext
	next   assembly.Assembly
}

func (p *propagated) with(ctx context.Context) context.Context {
	return trace.ContextWithRemoteSpanContext(ctx, p.parent)
}

func (p *propagated) StartJob(ctx context.Context) error {
	return p.next.StartJob(p.with(ctx))
}

func (p *propagated) ExecuteJob(ctx context.Context) error {
	return p.next.ExecuteJob(p.with(ctx))
}

func (p *propagated) EndJob(ctx context.Context, lastJob bool) error {
	return p.next.EndJob(p.with(ctx), lastJob)
}
