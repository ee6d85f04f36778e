// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package assembly provides an ordered-commit job pipeline. Each job submitted
// to a [Line] has three phases: a start phase and an end phase that run one at
// a time in submission order, and an execute phase in between that runs
// concurrently with other jobs' execute phases. This lets expensive or
// I/O-bound work proceed in parallel while the business logic around it still
// sees a strict order, for instance assigning sequence numbers on the way in
// and appending to a log on the way out.
//
// The end phase is told whether its job is the last one in the line. That is
// the basis of group commit: when many writers append concurrently, only the
// one that turns out to be last needs to pay for a flush, which then covers
// every earlier append as well. See [Assembly] for the exact contract and the
// caveats that come with relying on it.
//
// The [github.com/petenewcomb/assembly-go/wal] package is a small write-ahead
// log built this way, and [github.com/petenewcomb/assembly-go/otasm] adds
// logging, metrics and tracing to any [Assembly].
package assembly
