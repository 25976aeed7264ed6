package conf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	LogLevel string `conf:"log_level"`
	Monitor  struct {
		StallTimeout time.Duration `conf:"stall_timeout"`
		PidFile      string        `conf:"pidfile"`
	} `conf:"monitor"`
}

func TestTransformEnv(t *testing.T) {
	assert.Equal(t, "monitor.stall_timeout", transformEnv("FLEETWATCH_MONITOR__STALL_TIMEOUT", "FLEETWATCH_"))
	assert.Equal(t, "log_level", transformEnv("LOG_LEVEL", ""))
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse[testConfig](ParseOptions{
		Defaults: DefaultConfig{
			"log_level":             "info",
			"monitor.stall_timeout": 2 * time.Hour,
		},
		EnvPrefix: "FLEETWATCH_TEST_DEFAULTS_",
	})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.Monitor.StallTimeout)
}

func TestParse_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("FLEETWATCH_TEST_ENV_MONITOR__STALL_TIMEOUT", "30m")

	cfg, err := Parse[testConfig](ParseOptions{
		Defaults: DefaultConfig{
			"monitor.stall_timeout": 2 * time.Hour,
		},
		EnvPrefix: "FLEETWATCH_TEST_ENV_",
	})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Monitor.StallTimeout)
}

func TestParse_JsonFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"monitor": {"pidfile": "/run/fleetwatch.pid"}}`), 0o644))

	cfg, err := Parse[testConfig](ParseOptions{
		FileName:  path,
		EnvPrefix: "FLEETWATCH_TEST_JSON_",
	})
	require.NoError(t, err)

	assert.Equal(t, "/run/fleetwatch.pid", cfg.Monitor.PidFile)
}

func TestParse_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetwatch.env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\nMONITOR__PIDFILE=/tmp/w.pid\n"), 0o644))

	cfg, err := Parse[testConfig](ParseOptions{
		FileName:  path,
		EnvPrefix: "FLEETWATCH_TEST_DOTENV_",
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/w.pid", cfg.Monitor.PidFile)
}

func TestMergeDefaults(t *testing.T) {
	merged := MergeDefaults("",
		DefaultConfig{"log_level": "info"},
		MergeDefaults("monitor", DefaultConfig{"stall_timeout": "2h"}, DefaultConfig{"stall_timeout": "1h"}),
	)

	assert.Equal(t, DefaultConfig{
		"log_level":             "info",
		"monitor.stall_timeout": "1h",
	}, merged)
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := GetConfigFromContext[testConfig](context.Background())
	assert.ErrorIs(t, err, ErrNoConfigInContext)

	ctx := ContextWithConfig(context.Background(), testConfig{LogLevel: "debug"})

	cfg, err := GetConfigFromContext[testConfig](ctx)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = GetConfigFromContext[string](ctx)
	assert.ErrorIs(t, err, ErrInvalidConfigInContext)
}
