package process

import (
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// StartDetached launches the process in a new session, detached from
// the controlling terminal, and returns its pid. The child is not
// waited for; it is reparented to init once the caller exits.
func StartDetached(config StartConfig, log *zap.Logger) (int, error) {
	if config.Cmd == "" {
		return 0, fmt.Errorf("%w: missing command", ErrInvalidConfig)
	}

	cmd, logFile, err := command(config)
	if err != nil {
		return 0, err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// stdin stays unset, which connects it to the null device
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start process: %w", err)
	}

	pid := cmd.Process.Pid

	if err := cmd.Process.Release(); err != nil {
		log.Warn("failed to release detached process", zap.Int("pid", pid), zap.Error(err))
	}

	log.Info("started detached process",
		zap.String("command", config.Cmd),
		zap.Strings("args", config.Args),
		zap.Int("pid", pid),
	)

	return pid, nil
}
