package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uber_config "go.uber.org/config"

	"ticksleep/core"
)

func TestDefaults(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)
	cfg, err := New(provider)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Timer.Frequency)
	assert.Equal(t, 64, cfg.Timer.MaxSleepers)
	assert.Equal(t, uint32(8), cfg.Timer.MaxPendingTicks)
	assert.Zero(t, cfg.Timer.LoopsPerTick)
	assert.True(t, cfg.Timer.EventRing)
	assert.Equal(t, "ticker", cfg.Tick.Source)
	assert.Equal(t, "raw", cfg.Tick.Framing)
	assert.Equal(t, 115200, cfg.Tick.Baud)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "ticksleep", cfg.Metrics.Prefix)
	assert.Equal(t, time.Second, cfg.Metrics.ReportInterval)
	assert.Equal(t, "multiple", cfg.Workload.Name)
}

func TestEnvironmentExpansion(t *testing.T) {
	t.Setenv("TICKSLEEP_TIMER_FREQUENCY", "250")
	t.Setenv("TICKSLEEP_TICK_DEVICE", "/dev/ttyUSB3")

	provider, err := NewProvider()
	require.NoError(t, err)
	cfg, err := New(provider)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Timer.Frequency)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Tick.Device)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timer:
  frequency: 1000
workload:
  name: simultaneous
  threads: 3
  iterations: 5
`), 0o600))

	provider, err := NewProvider(path)
	require.NoError(t, err)
	cfg, err := New(provider)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Timer.Frequency)
	assert.Equal(t, 64, cfg.Timer.MaxSleepers)
	assert.Equal(t, "simultaneous", cfg.Workload.Name)
}

func TestConfigFileFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))
	t.Setenv(EnvFile, path)

	provider, err := NewProvider()
	require.NoError(t, err)
	cfg, err := New(provider)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMissingFile(t *testing.T) {
	_, err := NewProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load configuration")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "frequency too low",
			yaml:    "timer:\n  frequency: 10\n",
			wantErr: "timer.frequency: timer frequency out of range: 10 Hz not in [19, 1000]",
		},
		{
			name:    "frequency too high",
			yaml:    "timer:\n  frequency: 2000\n",
			wantErr: "timer.frequency",
		},
		{
			name:    "unknown tick source",
			yaml:    "tick:\n  source: pit\n",
			wantErr: `tick.source: unknown source "pit"`,
		},
		{
			name:    "unknown framing",
			yaml:    "tick:\n  framing: slip\n",
			wantErr: `tick.framing: unknown framing "slip"`,
		},
		{
			name:    "unknown workload",
			yaml:    "workload:\n  name: forever\n",
			wantErr: `workload: unknown workload "forever"`,
		},
		{
			name:    "more threads than sleepers",
			yaml:    "timer:\n  maxSleepers: 2\n",
			wantErr: "workload.threads: 5 exceeds timer.maxSleepers 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := uber_config.NewYAML(
				uber_config.Source(strings.NewReader(string(defaultYAML))),
				uber_config.Source(strings.NewReader(tt.yaml)),
				uber_config.Expand(os.LookupEnv),
			)
			require.NoError(t, err)

			_, err = New(provider)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNegativeMaxSleepersIsUnbounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unbounded.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timer:\n  maxSleepers: -1\n"), 0o600))

	provider, err := NewProvider(path)
	require.NoError(t, err)
	cfg, err := New(provider)
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Timer.MaxSleepers)

	tm, err := core.New(nil, nil, cfg.Timer.Config)
	require.NoError(t, err)
	assert.Zero(t, tm.Queue().Cap())
}

func TestFrequencyErrorIsSentinel(t *testing.T) {
	cfg := Config{}
	cfg.Timer.Frequency = 5
	assert.ErrorIs(t, cfg.Validate(), core.ErrFrequencyRange)
}
