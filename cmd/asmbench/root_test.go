// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/petenewcomb/assembly-go/wal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunBench(t *testing.T) {
	chk := require.New(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "line.yaml")
	chk.NoError(os.WriteFile(cfgPath, []byte("concurrency_limit: 4\nqueue_capacity: 32\n"), 0o644))
	path := filepath.Join(dir, "bench.wal")

	s, err := runBench(context.Background(), zap.NewNop(), benchFlags{
		configPath:  cfgPath,
		path:        path,
		records:     203,
		producers:   8,
		payloadSize: 16,
	})
	chk.NoError(err)
	chk.Equal(uint64(203), s.Records)
	chk.NotEmpty(s.RunID)
	chk.LessOrEqual(s.Syncs, s.Records)
	chk.Positive(s.Syncs)
	chk.InDelta(float64(s.LastCommits)/203, s.LastJobRatio(), 1e-9)

	f, err := os.Open(path)
	chk.NoError(err)
	defer f.Close()
	var n int
	chk.NoError(wal.Replay(f, func(r wal.Record) error {
		n++
		chk.Equal(uint64(n), r.LSN)
		chk.Len(r.Payload, 16)
		return nil
	}))
	chk.Equal(203, n)
}

func TestRunBenchRejectsBadFlags(t *testing.T) {
	chk := require.New(t)
	_, err := runBench(context.Background(), zap.NewNop(), benchFlags{records: 1, producers: 0})
	chk.ErrorContains(err, "producers must be positive")
	_, err = runBench(context.Background(), zap.NewNop(), benchFlags{records: -1, producers: 1})
	chk.ErrorContains(err, "records must be non-negative")
}

func TestRootCmd(t *testing.T) {
	chk := require.New(t)
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--records", "20", "--producers", "3", "--path", filepath.Join(t.TempDir(), "x.wal")})
	chk.NoError(cmd.Execute())
	chk.Contains(out.String(), "records=20 ")
}
