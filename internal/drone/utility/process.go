package utility

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// executeCommand starts the command in its own session so that it
// outlives the helper invocation that launched it.
func (u *Utility) executeCommand(c calls.ExecuteCommand) (int, error) {
	if c.Command == "" {
		return 0, errors.New("empty command")
	}

	cmd := exec.Command("sh", "-c", c.Command)
	cmd.Dir = c.WorkingDirectory
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if c.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o755); err != nil {
			return 0, fmt.Errorf("failed to create log directory: %w", err)
		}

		logFile, err := os.OpenFile(c.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("failed to open log file: %w", err)
		}
		// the child holds its own descriptor after Start
		defer logFile.Close()

		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start command: %w", err)
	}

	pid := cmd.Process.Pid

	// reap the child once it exits
	go func() {
		_ = cmd.Wait()
	}()

	u.log.Info("started command",
		zap.String("command", c.Command),
		zap.Int("pid", pid),
	)

	if c.PidfileName != "" {
		path := filepath.Join(c.WorkingDirectory, c.PidfileName)
		if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
			return pid, fmt.Errorf("failed to write pidfile: %w", err)
		}
	}

	return pid, nil
}

func (u *Utility) killProcess(ctx context.Context, c calls.KillProcess) ([]string, error) {
	signal := syscall.SIGKILL
	if c.Signal != 0 {
		signal = syscall.Signal(c.Signal)
	}

	p, err := process.NewProcessWithContext(ctx, int32(c.PID))
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return []string{fmt.Sprintf("process %d was already gone when asked to kill it", c.PID)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up process %d: %w", c.PID, err)
	}

	if err := p.SendSignalWithContext(ctx, signal); err != nil {
		return nil, fmt.Errorf("failed to signal process %d: %w", c.PID, err)
	}

	return nil, nil
}

func (u *Utility) refresh(ctx context.Context, c calls.Refresh) (calls.RefreshResult, error) {
	res := calls.RefreshResult{
		Pidfiles:  map[string]string{},
		Processes: []calls.ProcessInfo{},
	}

	for _, path := range c.PidfilePaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("failed to read pidfile %s: %w", path, err)
		}
		res.Pidfiles[path] = string(data)
	}

	if c.ProcessName == "" {
		return res, nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name != c.ProcessName {
			// processes may exit while we iterate
			continue
		}

		cmdline, _ := p.CmdlineWithContext(ctx)
		res.Processes = append(res.Processes, calls.ProcessInfo{
			PID:     int(p.Pid),
			Name:    name,
			Cmdline: cmdline,
		})
	}

	return res, nil
}

func (u *Utility) checkDiskSpace(ctx context.Context, c calls.CheckDiskSpace) (float64, []string, error) {
	usage, err := disk.UsageWithContext(ctx, c.Path)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read disk usage of %s: %w", c.Path, err)
	}

	used := usage.UsedPercent / 100

	var warnings []string
	if c.WarnFraction > 0 && used >= c.WarnFraction {
		hostname, _ := os.Hostname()
		warnings = append(warnings, fmt.Sprintf(
			"disk %.0f%% full: %s on %s",
			usage.UsedPercent,
			c.Path,
			hostname,
		))
	}

	return used, warnings, nil
}
