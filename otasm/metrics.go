// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasm

import (
	"context"
	"time"

	"github.com/petenewcomb/assembly-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metered adds metrics collection to an assembly. For each phase it records
// a count, a duration histogram in seconds, and an error count, named
// "<name>.<phase>.count", "<name>.<phase>.duration", and
// "<name>.<phase>.errors". Commits made with lastJob set are also counted as
// "<name>.commit.last", so that the ratio of flushes to commits is visible.
//
// Instruments come from the global meter provider at the time Metered is
// called.
func Metered(name string, a assembly.Assembly) assembly.Assembly {
	if a == nil {
		panic("assembly must be non-nil")
	}
	meter := otel.GetMeterProvider().Meter("otasm")
	m := &metered{
		next:    a,
		start:   newPhaseInstruments(meter, name+"."+phaseStart),
		execute: newPhaseInstruments(meter, name+"."+phaseExecute),
		end:     newPhaseInstruments(meter, name+"."+phaseEnd),
	}
	m.lastCommits, _ = meter.Int64Counter(name + ".commit.last")
	return m
}

type metered struct {
	next        assembly.Assembly
	start       phaseInstruments
	execute     phaseInstruments
	end         phaseInstruments
	lastCommits metric.Int64Counter
}

type phaseInstruments struct {
	count    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

func newPhaseInstruments(meter metric.Meter, prefix string) phaseInstruments {
	var pi phaseInstruments
	pi.count, _ = meter.Int64Counter(prefix + ".count")
	pi.errors, _ = meter.Int64Counter(prefix + ".errors")
	pi.duration, _ = meter.Float64Histogram(prefix+".duration", metric.WithUnit("s"))
	return pi
}

func (pi *phaseInstruments) record(ctx context.Context, fn func(context.Context) error) error {
	startTime := time.Now()
	pi.count.Add(ctx, 1)

	// A panic is counted as an error before it continues on to the line,
	// which recovers it.
	failed := true
	defer func() {
		pi.duration.Record(ctx, time.Since(startTime).Seconds())
		if failed {
			pi.errors.Add(ctx, 1)
		}
	}()

	err := fn(ctx)
	failed = err != nil
	return err
}

func (m *metered) StartJob(ctx context.Context) error {
	return m.start.record(ctx, m.next.StartJob)
}

func (m *metered) ExecuteJob(ctx context.Context) error {
	return m.execute.record(ctx, m.next.ExecuteJob)
}

func (m *metered) EndJob(ctx context.Context, lastJob bool) error {
	err := m.end.record(ctx, func(ctx context.Context) error {
		return m.next.EndJob(ctx, lastJob)
	})
	if err == nil && lastJob {
		m.lastCommits.Add(ctx, 1)
	}
	return err
}
