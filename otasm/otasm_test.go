// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/petenewcomb/assembly-go"
	"github.com/petenewcomb/assembly-go/otasm"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordSpans installs a tracer provider that records ended spans for the
// duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

// observeLogs replaces the global zap logger for the duration of the test.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

// runOne submits a to a fresh line and waits for it.
func runOne(t *testing.T, ctx context.Context, a assembly.Assembly) error {
	chk := require.New(t)
	l := assembly.NewLine(context.Background())
	defer func() {
		chk.NoError(l.Shutdown(context.Background(), true))
	}()
	j, err := l.Submit(ctx, a)
	chk.NoError(err)
	return j.Wait(ctx)
}

func attr(kvs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracedSpansEachPhase(t *testing.T) {
	chk := require.New(t)
	sr := recordSpans(t)

	chk.NoError(runOne(t, context.Background(), otasm.Traced("put", assembly.Funcs{})))

	spans := sr.Ended()
	chk.Len(spans, 3)
	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
		seq, ok := attr(s.Attributes(), otasm.SeqKey)
		chk.True(ok)
		chk.Equal(int64(1), seq.AsInt64())
		chk.Equal(codes.Unset, s.Status().Code)
	}
	chk.Equal([]string{"put.start", "put.execute", "put.end"}, names)

	last, ok := attr(spans[2].Attributes(), otasm.LastJobKey)
	chk.True(ok)
	chk.True(last.AsBool())
}

func TestTracedMarksFailure(t *testing.T) {
	chk := require.New(t)
	sr := recordSpans(t)

	boom := errors.New("boom")
	err := runOne(t, context.Background(), otasm.Traced("put", assembly.Funcs{
		Execute: func(context.Context) error { return boom },
	}))
	chk.ErrorIs(err, boom)

	spans := sr.Ended()
	chk.Len(spans, 2)
	chk.Equal("put.execute", spans[1].Name())
	chk.Equal(codes.Error, spans[1].Status().Code)
	chk.Equal("boom", spans[1].Status().Description)
	chk.Len(spans[1].Events(), 1)
}

func TestPropagatedParentsPhaseSpans(t *testing.T) {
	chk := require.New(t)
	sr := recordSpans(t)

	ctx, root := otel.Tracer("test").Start(context.Background(), "request")
	l := assembly.NewLine(context.Background())
	j, err := otasm.Submit(ctx, l, "put", assembly.Funcs{})
	chk.NoError(err)
	chk.NoError(j.Wait(ctx))
	chk.NoError(l.Shutdown(ctx, true))
	root.End()

	spans := sr.Ended()
	chk.Len(spans, 4)
	rootSC := root.SpanContext()
	for _, s := range spans[:3] {
		chk.Equal(rootSC.TraceID(), s.SpanContext().TraceID())
		chk.Equal(rootSC.SpanID(), s.Parent().SpanID())
	}
	chk.Equal("request", spans[3].Name())
}

func TestPropagatedWithoutSpanIsIdentity(t *testing.T) {
	chk := require.New(t)
	a := assembly.Funcs{}
	chk.Equal(assembly.Assembly(a), otasm.Propagated(context.Background(), a))
}

func TestLoggedPhases(t *testing.T) {
	chk := require.New(t)
	logs := observeLogs(t)

	chk.NoError(runOne(t, context.Background(), otasm.Logged("put", assembly.Funcs{})))

	chk.Equal(3, logs.FilterMessage("Starting phase").Len())
	completed := logs.FilterMessage("Phase completed").All()
	chk.Len(completed, 3)
	for _, e := range completed {
		chk.Equal(zapcore.DebugLevel, e.Level)
		fields := e.ContextMap()
		chk.Equal("put", fields["operation"])
		chk.Equal(uint64(1), fields["seq"])
		chk.Contains(fields, "duration")
	}
	chk.Equal("end", completed[2].ContextMap()["phase"])
	chk.Equal(true, completed[2].ContextMap()["last_job"])
	chk.Zero(logs.FilterMessage("Phase failed").Len())
}

func TestLoggedFailure(t *testing.T) {
	chk := require.New(t)
	logs := observeLogs(t)

	boom := errors.New("boom")
	err := runOne(t, context.Background(), otasm.Logged("put", assembly.Funcs{
		Start: func(context.Context) error { return boom },
	}))
	chk.ErrorIs(err, boom)

	failed := logs.FilterMessage("Phase failed").All()
	chk.Len(failed, 1)
	chk.Equal(zapcore.ErrorLevel, failed[0].Level)
	chk.Equal("start", failed[0].ContextMap()["phase"])
	chk.Equal("boom", failed[0].ContextMap()["error"])
	chk.Zero(logs.FilterMessage("Phase completed").Len())
}

func TestMeteredPassesThrough(t *testing.T) {
	chk := require.New(t)

	var lastJobs []bool
	boom := errors.New("boom")
	calls := 0
	a := otasm.Metered("put", assembly.Funcs{
		Start:   func(context.Context) error { calls++; return nil },
		Execute: func(context.Context) error { calls++; return nil },
		End: func(_ context.Context, lastJob bool) error {
			calls++
			lastJobs = append(lastJobs, lastJob)
			return boom
		},
	})
	err := runOne(t, context.Background(), a)
	chk.ErrorIs(err, boom)
	chk.ErrorIs(err, assembly.ErrEndFailed)
	chk.Equal(3, calls)
	chk.Equal([]bool{true}, lastJobs)
}

func TestMeteredCountsPanicAndRethrows(t *testing.T) {
	chk := require.New(t)
	err := runOne(t, context.Background(), otasm.Instrumented("put", assembly.Funcs{
		Execute: func(context.Context) error { panic("kaboom") },
	}))
	chk.ErrorIs(err, assembly.ErrPanic)
	chk.ErrorIs(err, assembly.ErrExecuteFailed)
}

func TestNilAssemblyPanics(t *testing.T) {
	chk := require.New(t)
	chk.PanicsWithValue("assembly must be non-nil", func() { otasm.Logged("x", nil) })
	chk.PanicsWithValue("assembly must be non-nil", func() { otasm.Metered("x", nil) })
	chk.PanicsWithValue("assembly must be non-nil", func() { otasm.Traced("x", nil) })
	chk.PanicsWithValue("assembly must be non-nil", func() { otasm.Propagated(context.Background(), nil) })
}
