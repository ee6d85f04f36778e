// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/petenewcomb/assembly-go"
	"github.com/petenewcomb/assembly-go/wal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type benchFlags struct {
	configPath  string
	path        string
	records     int
	producers   int
	payloadSize int
	verbose     bool
}

// summary is what a run reports when it finishes.
type summary struct {
	RunID       string
	Records     uint64
	Syncs       uint64
	LastCommits uint64
	Elapsed     time.Duration
}

// LastJobRatio is the fraction of commits that were told they were last, which
// is the fraction that synced.
func (s summary) LastJobRatio() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.LastCommits) / float64(s.Records)
}

func newRootCmd() *cobra.Command {
	var f benchFlags
	cmd := &cobra.Command{
		Use:   "asmbench",
		Short: "Benchmark group commit on a write-ahead log",
		Long: `Appends records to a write-ahead log from concurrent producers and
reports how many records each sync covered.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(f.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			s, err := runBench(cmd.Context(), logger, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"records=%d syncs=%d last_job_ratio=%.3f elapsed=%s\n",
				s.Records, s.Syncs, s.LastJobRatio(), s.Elapsed)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "YAML file with line settings")
	flags.StringVar(&f.path, "path", "", "log file to append to (default: a new temporary file)")
	flags.IntVar(&f.records, "records", 10000, "number of records to append")
	flags.IntVar(&f.producers, "producers", 16, "number of concurrent producers")
	flags.IntVar(&f.payloadSize, "payload-size", 128, "bytes per record payload")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func runBench(ctx context.Context, logger *zap.Logger, f benchFlags) (summary, error) {
	if f.records < 0 {
		return summary{}, fmt.Errorf("records must be non-negative, got %d", f.records)
	}
	if f.producers < 1 {
		return summary{}, fmt.Errorf("producers must be positive, got %d", f.producers)
	}
	if f.payloadSize < 0 {
		return summary{}, fmt.Errorf("payload size must be non-negative, got %d", f.payloadSize)
	}

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	lineOpts := []assembly.Option{assembly.WithLogger(logger)}
	if f.configPath != "" {
		cfg, err := assembly.LoadConfigFile(f.configPath)
		if err != nil {
			return summary{}, err
		}
		lineOpts = append(lineOpts, assembly.WithConfig(cfg))
	}

	path := f.path
	if path == "" {
		dir, err := os.MkdirTemp("", "asmbench-")
		if err != nil {
			return summary{}, err
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, runID+".wal")
	}

	log, err := wal.Open(ctx, path,
		wal.WithLogger(logger),
		wal.WithLineOptions(lineOpts...))
	if err != nil {
		return summary{}, err
	}
	logger.Info("benchmark starting",
		zap.String("path", path),
		zap.Int("records", f.records),
		zap.Int("producers", f.producers),
		zap.Int("payload_size", f.payloadSize))

	payload := make([]byte, f.payloadSize)
	_, _ = rand.Read(payload)

	startTime := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := range f.producers {
		// Spread the remainder over the first producers.
		n := f.records / f.producers
		if p < f.records%f.producers {
			n++
		}
		g.Go(func() error {
			for range n {
				if _, err := log.Append(gctx, payload); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err = g.Wait()
	elapsed := time.Since(startTime)

	if cerr := log.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		return summary{}, err
	}

	st := log.Stats()
	s := summary{
		RunID:       runID,
		Records:     st.Appends,
		Syncs:       st.Syncs,
		LastCommits: log.LineStats().LastCommits,
		Elapsed:     elapsed,
	}
	logger.Info("benchmark finished",
		zap.Uint64("records", s.Records),
		zap.Uint64("syncs", s.Syncs),
		zap.Float64("last_job_ratio", s.LastJobRatio()),
		zap.Duration("elapsed", s.Elapsed))
	return s, nil
}
