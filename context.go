// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"context"
)

type jobContextKeyType struct{}

var jobContextKey any = jobContextKeyType{}

func withJob(ctx context.Context, j *Job) context.Context {
	return context.WithValue(ctx, jobContextKey, j)
}

// JobFromContext returns the job whose phase is running with ctx, if any. Every
// context passed to a phase of an [Assembly] carries its job, so a phase can
// read its own sequence number or poll [Job.IsLast].
func JobFromContext(ctx context.Context) (*Job, bool) {
	j, ok := ctx.Value(jobContextKey).(*Job)
	return j, ok
}
