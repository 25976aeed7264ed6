package monitor

import "time"

const (
	DefaultStallTimeout      = 2 * time.Hour
	DefaultPauseLength       = 60 * time.Second
	DefaultKillGrace         = 10 * time.Second
	DefaultDiagnosticTimeout = 60 * time.Second
)

type Config struct {
	// DaemonCommand is the scheduling daemon binary
	DaemonCommand string `conf:"daemon_command"`

	// DaemonArgs are passed to the daemon before the recovery flag
	// and the results directory
	DaemonArgs []string `conf:"daemon_args"`

	// DaemonPidfile records the pid of the running daemon, so that a
	// daemon left over from a previous watchdog can be killed
	DaemonPidfile string `conf:"daemon_pidfile"`

	// Pidfile records the pid of the watchdog itself
	Pidfile string `conf:"pidfile"`

	// StallTimeout is how long the daemon log may stay unchanged
	// before the daemon counts as stalled
	StallTimeout time.Duration `conf:"stall_timeout"`

	// PauseLength is the interval between two checks
	PauseLength time.Duration `conf:"pause_length"`

	// KillGrace is how long an interrupted daemon may take to exit
	// before it is killed
	KillGrace time.Duration `conf:"kill_grace"`

	// DiagnosticTimeout bounds each diagnostic command
	DiagnosticTimeout time.Duration `conf:"diagnostic_timeout"`
}

func (c Config) withDefaults() Config {
	if c.StallTimeout <= 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	if c.PauseLength <= 0 {
		c.PauseLength = DefaultPauseLength
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.DiagnosticTimeout <= 0 {
		c.DiagnosticTimeout = DefaultDiagnosticTimeout
	}
	return c
}
