package transport

import (
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

// OpenSSH runs commands through the system ssh binary.
type OpenSSH struct {
	hostname string
	config   Config

	// exec runs the ssh binary and returns its combined output
	exec func(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)

	log *zap.Logger
}

var _ Transport = (*OpenSSH)(nil)

func NewOpenSSH(hostname string, config Config, log *zap.Logger) *OpenSSH {
	return &OpenSSH{
		hostname: hostname,
		config:   config,
		exec:     execCommand,
		log:      log.Named("transport_openssh").With(zap.String("host", hostname)),
	}
}

func (t *OpenSSH) Run(ctx context.Context, command string, stdin io.Reader) ([]byte, error) {
	args := t.args(command)

	t.log.Debug("running ssh", zap.Strings("args", args))

	out, err := t.exec(ctx, stdin, "ssh", args...)
	if err != nil {
		return out, fmt.Errorf("failed to run command on %s: %w", t.hostname, err)
	}

	return out, nil
}

func (t *OpenSSH) args(command string) []string {
	timeout := int(math.Ceil(t.config.ConnectTimeout.Seconds()))

	args := []string{
		"-x",
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=" + strconv.Itoa(timeout),
		"-o", "LogLevel=ERROR",
		"-p", strconv.Itoa(t.config.SSH.Port),
	}

	if t.config.SSH.User != "" {
		args = append(args, "-l", t.config.SSH.User)
	}
	if t.config.SSH.KeyFile != "" {
		args = append(args, "-i", t.config.SSH.KeyFile)
	}
	if t.config.SSH.KnownHosts != "" {
		args = append(args, "-o", "UserKnownHostsFile="+t.config.SSH.KnownHosts)
	}
	if t.config.SSH.InsecureIgnoreHostKey {
		args = append(args, "-o", "StrictHostKeyChecking=no")
	}

	return append(args, t.hostname, command)
}

func (t *OpenSSH) Close() error {
	return nil
}

func execCommand(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	return cmd.CombinedOutput()
}
