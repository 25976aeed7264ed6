// Package monitor keeps the scheduling daemon alive. The Supervisor
// launches the daemon, polls it for exit and for a stalled log, and
// restarts it in recovery mode when either happens.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/labfleet/fleetwatch/internal/notify"
	"github.com/labfleet/fleetwatch/internal/pidfile"
	"github.com/labfleet/fleetwatch/internal/process"
	"github.com/labfleet/fleetwatch/util/clock"
	"go.uber.org/zap"
)

type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateDead
	StateStalled
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateDead:
		return "dead"
	case StateStalled:
		return "stalled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// RecoverFlag asks the daemon to recover hosts and jobs left over
	// by its previous incarnation
	RecoverFlag = "--recover-hosts"

	// LogEnv passes the path of the daemon log to the daemon
	LogEnv = "FLEETWATCH_SCHEDULER_LOG"

	logTimeFormat = "2006-01-02-15.04.05"
)

// Daemon is a running incarnation of the scheduling daemon.
type Daemon interface {
	Pid() int
	Exited() (process.ExitEvent, bool)
	Stop(grace time.Duration) error
}

// LaunchFn starts a daemon process.
type LaunchFn func(config process.StartConfig) (Daemon, error)

// Capturer collects a diagnostic snapshot of the host.
type Capturer interface {
	Capture(ctx context.Context) []byte
}

type Params struct {
	Config Config

	// LogDir receives one log file per daemon incarnation
	LogDir string

	// ResultsDir is passed to the daemon
	ResultsDir string

	// Recover starts the first incarnation in recovery mode
	Recover bool

	Clock       clock.Clock
	Launch      LaunchFn
	Diagnostics Capturer
	Notifier    notify.Notifier
	Log         *zap.Logger
}

type Supervisor struct {
	config     Config
	logDir     string
	resultsDir string

	recover    bool
	state      State
	daemon     Daemon
	logPath    string
	logSize    int64
	lastChange time.Time
	restarts   int

	// status is the last published snapshot, readable from any goroutine
	status atomic.Pointer[Status]

	clock       clock.Clock
	launch      LaunchFn
	diagnostics Capturer
	notifier    notify.Notifier

	log *zap.Logger
}

func New(params Params) *Supervisor {
	if params.Clock == nil {
		params.Clock = clock.Real()
	}
	if params.Launch == nil {
		params.Launch = launchProcess(params.Log)
	}
	if params.Notifier == nil {
		params.Notifier = notify.Nop()
	}

	s := &Supervisor{
		config:      params.Config.withDefaults(),
		logDir:      params.LogDir,
		resultsDir:  params.ResultsDir,
		recover:     params.Recover,
		state:       StateNotStarted,
		clock:       params.Clock,
		launch:      params.Launch,
		diagnostics: params.Diagnostics,
		notifier:    params.Notifier,
		log:         params.Log.Named("supervisor"),
	}
	s.publish()

	return s
}

func launchProcess(log *zap.Logger) LaunchFn {
	return func(config process.StartConfig) (Daemon, error) {
		return process.Start(config, log)
	}
}

func (s *Supervisor) State() State {
	return s.state
}

// LogPath returns the log file of the current incarnation.
func (s *Supervisor) LogPath() string {
	return s.logPath
}

// Recovering reports whether the next incarnation starts in recovery
// mode.
func (s *Supervisor) Recovering() bool {
	return s.recover
}

// Start kills any previous daemon and launches a new one with a fresh
// log file.
func (s *Supervisor) Start(ctx context.Context) error {
	s.stopDaemon(ctx)

	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}

	now := s.clock.Now()
	s.logPath = filepath.Join(s.logDir, "scheduler.log."+now.Format(logTimeFormat))

	args := append([]string{}, s.config.DaemonArgs...)
	if s.recover {
		args = append(args, RecoverFlag)
	}
	args = append(args, s.resultsDir)

	log := s.log.With(zap.Strings("args", args), zap.String("log", s.logPath), zap.Bool("recover", s.recover))
	log.Info("starting daemon")

	daemon, err := s.launch(process.StartConfig{
		Cmd:     s.config.DaemonCommand,
		Args:    args,
		Env:     map[string]string{LogEnv: s.logPath},
		LogFile: s.logPath,
	})
	if err != nil {
		s.state = StateNotStarted
		s.publish()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	s.daemon = daemon
	s.state = StateRunning
	s.logSize = 0
	s.lastChange = now
	s.publish()

	if s.config.DaemonPidfile != "" {
		if err := pidfile.Write(s.config.DaemonPidfile, daemon.Pid()); err != nil {
			log.Error("failed to write daemon pidfile", zap.Error(err))
		}
	}

	return nil
}

// IsRunning checks the daemon once. It reports false when the daemon
// exited or its log has not changed for the whole stall
// timeout; a stall is recorded in <log>.stall_info.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	if s.state != StateRunning || s.daemon == nil {
		return false
	}

	if exit, ok := s.daemon.Exited(); ok {
		s.log.Warn("daemon exited", zap.Stringer("exit", exit))
		s.state = StateDead
		s.publish()
		return false
	}

	now := s.clock.Now()

	size := logSize(s.logPath)
	if size != s.logSize {
		s.logSize = size
		s.lastChange = now
		return true
	}

	if stalled := now.Sub(s.lastChange); stalled >= s.config.StallTimeout {
		s.log.Warn("daemon stalled",
			zap.Duration("unchanged_for", stalled),
			zap.String("log", s.logPath),
		)
		s.state = StateStalled
		s.publish()
		s.captureStallInfo(ctx)
		return false
	}

	return true
}

// Run starts the daemon and keeps it running until ctx is done. The
// daemon is stopped before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		s.log.Error("failed to start daemon", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.Shutdown(context.Background())
			return nil
		case <-s.clock.After(s.config.PauseLength):
		}

		if s.IsRunning(ctx) {
			continue
		}

		if s.state != StateNotStarted {
			s.notifier.Notify(ctx, notify.Notification{
				Subject: "scheduler " + s.state.String(),
				Body:    fmt.Sprintf("restarting scheduler in recovery mode, previous log %s", s.logPath),
				Source:  "monitor",
			})
		}

		s.recover = true
		s.restarts++

		if err := s.Start(ctx); err != nil {
			s.log.Error("failed to restart daemon", zap.Error(err))
		}
	}
}

// Status returns the last published state of the supervisor. Unlike
// the other accessors it is safe to call while Run is active.
func (s *Supervisor) Status() Status {
	return *s.status.Load()
}

func (s *Supervisor) publish() {
	status := Status{
		State:      s.state.String(),
		LogPath:    s.logPath,
		Recovering: s.recover,
		Restarts:   s.restarts,
		Since:      s.clock.Now(),
	}
	if s.daemon != nil {
		status.Pid = s.daemon.Pid()
	}
	s.status.Store(&status)
}

// Shutdown stops the daemon and removes its pidfile.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.stopDaemon(ctx)
	s.state = StateNotStarted
	s.publish()

	if s.config.DaemonPidfile != "" {
		return pidfile.Remove(s.config.DaemonPidfile)
	}

	return nil
}

// stopDaemon stops the current daemon, and any daemon recorded in the
// daemon pidfile by a previous watchdog.
func (s *Supervisor) stopDaemon(ctx context.Context) {
	if s.daemon != nil {
		if err := s.daemon.Stop(s.config.KillGrace); err != nil {
			s.log.Error("failed to stop daemon", zap.Int("pid", s.daemon.Pid()), zap.Error(err))
		}
		s.daemon = nil
	}

	if s.config.DaemonPidfile != "" {
		if err := pidfile.Kill(ctx, s.config.DaemonPidfile, s.config.KillGrace); err != nil {
			s.log.Error("failed to kill previous daemon", zap.Error(err))
		}
	}
}

func (s *Supervisor) captureStallInfo(ctx context.Context) {
	if s.diagnostics == nil {
		return
	}

	path := s.logPath + ".stall_info"

	if err := os.WriteFile(path, s.diagnostics.Capture(ctx), 0o644); err != nil {
		s.log.Error("failed to write stall info", zap.String("path", path), zap.Error(err))
		return
	}

	s.log.Info("stall info written", zap.String("path", path))
}

func logSize(path string) int64 {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	} else if err != nil {
		return -1
	}
	return info.Size()
}
