// Package config holds the configuration tree of fleetwatch. Values are
// layered from DefaultConfig, an optional config file, FLEETWATCH_
// prefixed env vars and cli flags.
package config

import (
	"path/filepath"

	"github.com/labfleet/fleetwatch/internal/drone"
	"github.com/labfleet/fleetwatch/internal/monitor"
	"github.com/labfleet/fleetwatch/internal/notify"
	"github.com/labfleet/fleetwatch/internal/server"
	"github.com/labfleet/fleetwatch/util/conf"
)

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// InstallRoot is the directory fleetwatch and the scheduler are
	// installed in
	InstallRoot string `conf:"install_root"`

	// LogDir receives the watchdog and scheduler logs
	LogDir string `conf:"log_dir"`

	// ResultsDir is where the scheduler writes job results
	ResultsDir string `conf:"results_dir"`

	// Drones configures the drone fleet
	Drones DronesConfig `conf:"drones"`

	// Monitor configures the scheduler watchdog
	Monitor monitor.Config `conf:"monitor"`

	// Status serves the watchdog status over http when a port is set
	Status server.HttpConfig `conf:"status"`

	// Database is the scheduler database
	Database DatabaseConfig `conf:"database"`

	// Notify configures where operational warnings are sent
	Notify NotifyConfig `conf:"notify"`
}

type DronesConfig struct {
	drone.FactoryConfig `conf:",squash"`
	drone.FleetConfig   `conf:",squash"`
}

type DatabaseConfig struct {
	// DSN is a postgres connection string. Empty disables the
	// processlist dump in stall diagnostics.
	DSN string `conf:"dsn"`
}

type NotifyConfig struct {
	Email notify.EmailConfig `conf:"email"`

	// Sentry reports notifications to sentry, when SENTRY_DSN is set
	Sentry bool `conf:"sentry"`
}

// WithInstallRoot fills the paths left unset from InstallRoot:
//
//	log_dir                 <root>/logs
//	results_dir             <root>/results
//	drones.helper_command   <root>/bin/fleetwatch drone-helper
//	monitor.daemon_command  <root>/bin/scheduler
//	monitor.daemon_pidfile  <root>/run/scheduler.pid
//	monitor.pidfile         <root>/run/monitor.pid
func (c Config) WithInstallRoot() Config {
	if c.InstallRoot == "" {
		return c
	}

	derive := func(field *string, elem ...string) {
		if *field == "" {
			*field = filepath.Join(append([]string{c.InstallRoot}, elem...)...)
		}
	}

	derive(&c.LogDir, "logs")
	derive(&c.ResultsDir, "results")
	derive(&c.Monitor.DaemonCommand, "bin", "scheduler")
	derive(&c.Monitor.DaemonPidfile, "run", "scheduler.pid")
	derive(&c.Monitor.Pidfile, "run", "monitor.pid")

	if c.Drones.HelperCommand == "" {
		c.Drones.HelperCommand = filepath.Join(c.InstallRoot, "bin", "fleetwatch") + " drone-helper"
	}

	return c
}

var DefaultConfig = conf.MergeDefaults("",
	conf.DefaultConfig{
		"log_level":    "info",
		"log_format":   "production",
		"install_root": "/opt/fleetwatch",
	},
	conf.MergeDefaults("drones", conf.DefaultConfig{
		"temp_dir":        "/tmp/fleetwatch",
		"transport":       "native",
		"connect_timeout": "300s",
		"process_name":    "autoserv",
	}),
	conf.MergeDefaults("monitor", conf.DefaultConfig{
		"stall_timeout":      "2h",
		"pause_length":       "60s",
		"kill_grace":         "10s",
		"diagnostic_timeout": "60s",
	}),
	conf.MergeDefaults("status", conf.DefaultConfig{
		"host": "localhost",
		"port": 0,
	}),
	conf.MergeDefaults("notify.email", conf.DefaultConfig{
		"port":       25,
		"queue_size": 100,
	}),
)
