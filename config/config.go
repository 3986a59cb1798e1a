// Package config loads ticksleep settings from YAML.
//
// The embedded default.yaml is always loaded first; files named on the
// command line or in TICKSLEEP_CONFIG are layered on top. ${VAR} and
// ${VAR:default} references are expanded from the environment.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	uber_config "go.uber.org/config"

	"ticksleep/alarm"
	"ticksleep/core"
	"ticksleep/host/tick"
	"ticksleep/internal/logging"
)

// EnvFile names an extra config file layered over the defaults.
const EnvFile = "TICKSLEEP_CONFIG"

//go:embed default.yaml
var defaultYAML []byte

// Timer holds the timer and interrupt controller settings.
type Timer struct {
	core.Config `yaml:",inline"`

	// MaxPendingTicks bounds latched timer interrupts before ticks are lost.
	MaxPendingTicks uint32 `yaml:"maxPendingTicks"`
}

// Metrics holds the tally reporting settings.
type Metrics struct {
	Prefix         string        `yaml:"prefix"`
	ReportInterval time.Duration `yaml:"reportInterval"`
}

// Config is the full ticksleep configuration.
type Config struct {
	Timer    Timer          `yaml:"timer"`
	Tick     tick.Config    `yaml:"tick"`
	Logging  logging.Config `yaml:"logging"`
	Metrics  Metrics        `yaml:"metrics"`
	Workload alarm.Config   `yaml:"workload"`
}

// NewProvider returns a provider over the embedded defaults, then
// TICKSLEEP_CONFIG if set, then files in order.
func NewProvider(files ...string) (uber_config.Provider, error) {
	opts := []uber_config.YAMLOption{
		uber_config.Source(bytes.NewReader(defaultYAML)),
	}
	if env := os.Getenv(EnvFile); env != "" {
		files = append([]string{env}, files...)
	}
	for _, f := range files {
		opts = append(opts, uber_config.File(filepath.Clean(f)))
	}
	opts = append(opts, uber_config.Expand(os.LookupEnv))

	provider, err := uber_config.NewYAML(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return provider, nil
}

// New populates and validates a Config from provider.
func New(provider uber_config.Provider) (Config, error) {
	var cfg Config
	if err := provider.Get(uber_config.Root).Populate(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside boot.
func (c Config) Validate() error {
	if err := core.ValidateFrequency(c.Timer.Frequency); err != nil {
		return fmt.Errorf("timer.frequency: %w", err)
	}
	if c.Workload.Threads > c.Timer.MaxSleepers && c.Timer.MaxSleepers > 0 {
		return fmt.Errorf("workload.threads: %d exceeds timer.maxSleepers %d", c.Workload.Threads, c.Timer.MaxSleepers)
	}
	switch c.Tick.Source {
	case tick.SourceTicker, tick.SourceSerial:
	default:
		return fmt.Errorf("tick.source: unknown source %q", c.Tick.Source)
	}
	switch c.Tick.Framing {
	case tick.FramingRaw, tick.FramingFrame:
	default:
		return fmt.Errorf("tick.framing: unknown framing %q", c.Tick.Framing)
	}
	if err := c.Workload.Validate(); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	return nil
}
