// Package utility executes drone operations against the local host.
// It backs the local drone directly and the remote drone through the
// drone-helper program.
package utility

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"go.uber.org/zap"
)

// Config describes how the utility reaches other hosts when it
// transfers files.
type Config struct {
	// RsyncCommand is the rsync binary used for file transfers.
	RsyncCommand string `conf:"rsync_command"`

	// SSHUser is the user to log in as on peer hosts. Empty means
	// the current user.
	SSHUser string `conf:"ssh_user"`

	// SSHOptions are extra options passed to ssh by rsync.
	SSHOptions []string `conf:"ssh_options"`
}

// Utility executes calls on the local host. A Utility holds no
// per-batch state and may be shared.
type Utility struct {
	config Config

	// run executes an external command and returns its combined output
	run func(ctx context.Context, name string, args ...string) ([]byte, error)

	log *zap.Logger
}

func New(config Config, log *zap.Logger) *Utility {
	if config.RsyncCommand == "" {
		config.RsyncCommand = "rsync"
	}

	return &Utility{
		config: config,
		run:    runCommand,
		log:    log.Named("utility"),
	}
}

// Execute runs one call and returns its result together with any
// warnings it produced. Warnings never invalidate the result.
func (u *Utility) Execute(ctx context.Context, call calls.Call) (any, []string, error) {
	u.log.Debug("executing call", zap.String("method", call.Method()))

	switch c := call.(type) {
	case calls.CreateDirectory:
		return u.createDirectory(c), nil, nil
	case calls.CopyFileOrDirectory:
		return nil, nil, u.copyFileOrDirectory(c)
	case calls.WriteToFile:
		return nil, nil, u.writeToFile(c)
	case calls.DeletePath:
		return nil, nil, u.deletePath(c)
	case calls.ExecuteCommand:
		pid, err := u.executeCommand(c)
		if err != nil {
			return nil, nil, err
		}
		return pid, nil, nil
	case calls.KillProcess:
		warnings, err := u.killProcess(ctx, c)
		return nil, warnings, err
	case calls.Refresh:
		res, err := u.refresh(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return res, nil, nil
	case calls.SendFileTo:
		warnings, err := u.sendFileTo(ctx, c)
		return nil, warnings, err
	case calls.GetFileFrom:
		return nil, nil, u.getFileFrom(ctx, c)
	case calls.CheckDiskSpace:
		used, warnings, err := u.checkDiskSpace(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return used, warnings, nil
	default:
		return nil, nil, fmt.Errorf("%w: %T", calls.ErrUnknownMethod, call)
	}
}

// ExecuteBatch runs the calls in order. Execution stops at the first
// failing call; the response then holds the results of the calls
// before it and the error message.
func (u *Utility) ExecuteBatch(ctx context.Context, batch []calls.Call) calls.Response {
	res := calls.Response{
		Results:  make([]any, 0, len(batch)),
		Warnings: []string{},
	}

	for i, call := range batch {
		result, warnings, err := u.Execute(ctx, call)
		res.Warnings = append(res.Warnings, warnings...)

		if err != nil {
			u.log.Error("call failed",
				zap.Int("index", i),
				zap.String("method", call.Method()),
				zap.Error(err),
			)
			res.Error = fmt.Sprintf("call %d (%s): %s", i, call.Method(), err)
			return res
		}

		res.Results = append(res.Results, result)
	}

	return res
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
