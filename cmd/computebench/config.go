package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	cp "github.com/azargarov/compute"
)

// Config is the on-disk benchmark configuration. Flags override it.
type Config struct {
	Workers   int  `yaml:"workers"`
	Pin       bool `yaml:"pin"`
	Payloads  int  `yaml:"payloads"`
	BlockSize int  `yaml:"block_size"`
	Rounds    int  `yaml:"rounds"`

	Watch struct {
		Initial time.Duration `yaml:"initial"`
		Max     time.Duration `yaml:"max"`
	} `yaml:"watch"`

	MetricsAddr string `yaml:"metrics_addr"`
}

func defaultConfig() Config {
	var c Config
	c.Payloads = 100000
	c.BlockSize = 4096
	c.Rounds = 1
	c.Watch.Initial = 50 * time.Millisecond
	c.Watch.Max = time.Second
	return c
}

// loadConfig reads path on top of the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var err error
	if c.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.Payloads < 0 {
		err = multierr.Append(err, fmt.Errorf("payloads must not be negative, got %d", c.Payloads))
	}
	if c.BlockSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("block_size must be positive, got %d", c.BlockSize))
	}
	if c.Rounds <= 0 {
		err = multierr.Append(err, fmt.Errorf("rounds must be positive, got %d", c.Rounds))
	}
	return err
}

func (c Config) options(metrics cp.MetricsPolicy) cp.Options {
	return cp.Options{
		Workers:      c.Workers,
		PinWorkers:   c.Pin,
		Metrics:      metrics,
		WatchInitial: c.Watch.Initial,
		WatchMax:     c.Watch.Max,
	}
}
