// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of a [Line] in a form that can be read from YAML:
//
//	concurrency_limit: 8
//	queue_capacity: 1024
//	drain_timeout: 30s
//
// Zero values mean "unbounded" for the limits and "no timeout" for the drain.
type Config struct {
	ConcurrencyLimit uint          `yaml:"concurrency_limit"`
	QueueCapacity    uint          `yaml:"queue_capacity"`
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
}

// LoadConfig decodes a Config from YAML. Unknown keys are rejected. Empty input
// yields the zero Config.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode assembly config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("decode assembly config: %w", err)
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.ConcurrencyLimit > math.MaxInt {
		return fmt.Errorf("concurrency_limit %d out of range", cfg.ConcurrencyLimit)
	}
	if cfg.QueueCapacity > math.MaxInt {
		return fmt.Errorf("queue_capacity %d out of range", cfg.QueueCapacity)
	}
	if cfg.DrainTimeout < 0 {
		return fmt.Errorf("negative drain_timeout %v", cfg.DrainTimeout)
	}
	return nil
}

// LoadConfigFile reads a Config from the YAML file at path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open assembly config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}
