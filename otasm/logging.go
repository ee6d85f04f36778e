// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasm

import (
	"context"
	"time"

	"github.com/petenewcomb/assembly-go"
	"go.uber.org/zap"
)

// Logged adds structured logging to an assembly. Each phase is logged at debug
// level when it begins and ends, with its duration. Failed phases are logged at
// error level.
func Logged(name string, a assembly.Assembly) assembly.Assembly {
	if a == nil {
		panic("assembly must be non-nil")
	}
	return &logged{name: name, next: a}
}

type logged struct {
	name string
	next assembly.Assembly
}

func (l *logged) StartJob(ctx context.Context) error {
	return l.log(ctx, phaseStart, nil, l.next.StartJob)
}

func (l *logged) ExecuteJob(ctx context.Context) error {
	return l.log(ctx, phaseExecute, nil, l.next.ExecuteJob)
}

func (l *logged) EndJob(ctx context.Context, lastJob bool) error {
	return l.log(ctx, phaseEnd, []zap.Field{zap.Bool("last_job", lastJob)},
		func(ctx context.Context) error {
			return l.next.EndJob(ctx, lastJob)
		})
}

func (l *logged) log(
	ctx context.Context,
	phase string,
	extra []zap.Field,
	fn func(context.Context) error,
) error {
	logger := zap.L().With(
		zap.String("operation", l.name),
		zap.String("component", "otasm"),
		zap.String("phase", phase),
		zap.Uint64("seq", seqOf(ctx)))

	logger.Debug("Starting phase", extra...)

	startTime := time.Now()
	err := fn(ctx)
	duration := time.Since(startTime)

	if err != nil {
		logger.Error("Phase failed",
			append(extra, zap.Duration("duration", duration), zap.Error(err))...)
	} else {
		logger.Debug("Phase completed",
			append(extra, zap.Duration("duration", duration))...)
	}
	return err
}
