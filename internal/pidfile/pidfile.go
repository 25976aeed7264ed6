// Package pidfile manages files recording the pid of a running
// process. Pidfiles are written atomically so a reader never sees a
// partial pid.
package pidfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labfleet/fleetwatch/util"
	"github.com/shirou/gopsutil/v3/process"
)

var ErrInvalidPidfile = errors.New("invalid pidfile")

// pollInterval is how often Kill checks whether the process exited.
const pollInterval = 100 * time.Millisecond

// Write atomically records pid in path. The parent directory is
// created if missing.
func Write(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating pidfile directory: %w", err)
	}

	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary pidfile: %w", err)
	}

	if _, err := f.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temporary pidfile: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temporary pidfile: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temporary pidfile: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming pidfile into place: %w", err)
	}

	return nil
}

// Read returns the pid recorded in path. When the file does not exist,
// the returned error wraps os.ErrNotExist.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPidfile, path)
	}

	return pid, nil
}

// Remove deletes the pidfile. Idempotent.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pidfile: %w", err)
	}
	return nil
}

// Running returns the pid recorded in path and whether that process
// is alive. A missing or unreadable pidfile reports not running.
func Running(path string) (int, bool) {
	pid, err := Read(path)
	if err != nil {
		return 0, false
	}
	return pid, util.IsProcessAlive(pid)
}

// Kill stops the process recorded in path: it is interrupted first and
// killed when still alive after the grace period. The pidfile is
// removed afterwards. A missing pidfile or dead process is not an
// error.
func Kill(ctx context.Context, path string, grace time.Duration) error {
	pid, running := Running(path)
	if !running {
		return Remove(path)
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		// exited in the meantime
		return Remove(path)
	}

	if err := proc.SendSignalWithContext(ctx, syscall.SIGINT); err != nil {
		return fmt.Errorf("interrupting %d: %w", pid, err)
	}

	if !waitForExit(ctx, pid, grace) {
		if err := proc.SendSignalWithContext(ctx, syscall.SIGKILL); err != nil && util.IsProcessAlive(pid) {
			return fmt.Errorf("killing %d: %w", pid, err)
		}

		if !waitForExit(ctx, pid, grace) {
			return fmt.Errorf("process %d did not exit", pid)
		}
	}

	return Remove(path)
}

func waitForExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if !util.IsProcessAlive(pid) {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return !util.IsProcessAlive(pid)
		case <-ticker.C:
		}
	}
}
