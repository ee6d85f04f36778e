// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package wal

import "github.com/petenewcomb/assembly-go/internal/cerr"

const (
	ErrClosed    = cerr.Error("log closed")
	ErrCorrupt   = cerr.Error("corrupt log")
	ErrTruncated = cerr.Error("truncated log")
	ErrTooLarge  = cerr.Error("record too large")
)
