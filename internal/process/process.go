// Package process runs a long-lived child process in its own process
// group with its output appended to a log file.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Process struct {
	pid     int
	done    chan struct{}
	exit    ExitEvent
	logFile *os.File

	log *zap.Logger
}

// Start launches the process. The process is not tied to any context;
// it runs until it exits or is stopped.
func Start(config StartConfig, log *zap.Logger) (*Process, error) {
	if config.Cmd == "" {
		return nil, fmt.Errorf("%w: missing command", ErrInvalidConfig)
	}

	log.With(
		zap.String("command", config.Cmd),
		zap.Strings("args", config.Args),
		zap.String("cwd", config.Cwd),
		zap.String("log_file", config.LogFile),
	).Debug("starting process")

	cmd, logFile, err := command(config)
	if err != nil {
		return nil, err
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	p := &Process{
		pid:     cmd.Process.Pid,
		done:    make(chan struct{}),
		logFile: logFile,
		log:     log.Named("process").With(zap.Int("pid", cmd.Process.Pid)),
	}

	go func() {
		// block until the process exits
		err := cmd.Wait()

		p.exit = getExitEvent(err)
		if p.logFile != nil {
			p.logFile.Close()
		}

		p.log.Debug("process exited", zap.Stringer("exit", p.exit))

		close(p.done)
	}()

	return p, nil
}

func (p *Process) Pid() int {
	return p.pid
}

// command prepares cmd for config. The returned log file, if any, is
// owned by the caller.
func command(config StartConfig) (*exec.Cmd, *os.File, error) {
	cmd := exec.Command(config.Cmd, config.Args...)
	cmd.Dir = config.Cwd

	if len(config.Env) > 0 {
		env := os.Environ()
		for k, v := range config.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	if config.LogFile == "" {
		return cmd, nil, nil
	}

	f, err := os.OpenFile(config.LogFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	cmd.Stdout = f
	cmd.Stderr = f

	return cmd, f, nil
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited, without blocking.
func (p *Process) Exited() (ExitEvent, bool) {
	select {
	case <-p.done:
		return p.exit, true
	default:
		return ExitEvent{}, false
	}
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) (ExitEvent, error) {
	select {
	case <-ctx.Done():
		return ExitEvent{}, ctx.Err()
	case <-p.done:
		return p.exit, nil
	}
}

// Signal sends sig to the process group of the process.
func (p *Process) Signal(sig syscall.Signal) error {
	if _, ok := p.Exited(); ok {
		return nil
	}

	p.log.Info("sending signal", zap.Stringer("signal", sig))

	if pgid, err := syscall.Getpgid(p.pid); err == nil {
		// Negative pid sends signal to all in process group
		return syscall.Kill(-pgid, sig)
	}

	return syscall.Kill(p.pid, sig)
}

// Kill sends SIGKILL and waits up to timeout for the process to exit.
// A negative timeout does not wait, a zero timeout waits indefinitely.
func (p *Process) Kill(timeout time.Duration) error {
	if err := p.Signal(syscall.SIGKILL); err != nil {
		p.log.Error("kill failed", zap.Error(err))
	}

	return p.waitForTermination(timeout)
}

// Stop interrupts the process and kills it when it has not exited
// after the grace period.
func (p *Process) Stop(grace time.Duration) error {
	if _, ok := p.Exited(); ok {
		return nil
	}

	if err := p.Signal(syscall.SIGINT); err != nil {
		p.log.Error("interrupt failed", zap.Error(err))
	}

	if err := p.waitForTermination(grace); err == nil {
		return nil
	}

	p.log.Warn("process did not exit after interrupt, killing", zap.Duration("grace", grace))

	return p.Kill(grace)
}

func (p *Process) waitForTermination(timeout time.Duration) error {
	// if timeout is < 0, don't wait for the process to exit
	if timeout < 0 {
		return nil
	}

	// if timeout is 0, wait indefinitely
	if timeout == 0 {
		<-p.done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return ErrKillTimeout
	}
}

// MARK: - Helpers

func getExitEvent(err error) ExitEvent {
	var cell int
	var exitStatus *int
	var signo *int

	if err == nil {
		// the process exited successfully, set the exit code to 0
		exitStatus = &cell
	} else if exitError, ok := err.(*exec.ExitError); ok {
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				cell = int(status.Signal())
				signo = &cell
			} else {
				cell = status.ExitStatus()
				exitStatus = &cell
			}
		}
	}

	if signo == nil && exitStatus == nil {
		// could not determine the exit status or signal,
		// set exit status to 1
		cell = 1
		exitStatus = &cell
	}

	return ExitEvent{
		Code:   exitStatus,
		Signal: signo,
	}
}
