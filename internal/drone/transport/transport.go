// Package transport runs the drone helper on a remote host over a
// secure remote shell.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownTransport = errors.New("unknown transport")
	ErrClosed           = errors.New("transport closed")
)

const (
	KindNative  = "native"
	KindOpenSSH = "openssh"
)

// Transport executes a command on one remote host, feeding stdin to
// it and returning its combined output. Transport errors are returned
// as-is; retrying is left to the caller.
type Transport interface {
	Run(ctx context.Context, command string, stdin io.Reader) ([]byte, error)
	Close() error
}

type SSHConfig struct {
	// User is the remote login. Empty means the current user.
	User string `conf:"user"`

	// Port is the remote ssh port.
	Port int `conf:"port"`

	// KeyFile is a private key used for authentication. When empty,
	// the native transport falls back to the ssh agent.
	KeyFile string `conf:"key_file"`

	// KnownHosts is the known_hosts file used to verify host keys.
	KnownHosts string `conf:"known_hosts"`

	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool `conf:"insecure_ignore_host_key"`
}

type Config struct {
	// Kind selects the transport implementation, native or openssh.
	Kind string `conf:"transport"`

	// ConnectTimeout bounds establishing the connection.
	ConnectTimeout time.Duration `conf:"connect_timeout"`

	SSH SSHConfig `conf:"ssh"`
}

const DefaultConnectTimeout = 300 * time.Second

// New creates the configured transport for hostname.
func New(hostname string, config Config, log *zap.Logger) (Transport, error) {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.SSH.Port == 0 {
		config.SSH.Port = 22
	}

	switch config.Kind {
	case KindNative, "":
		return NewNative(hostname, config, log)
	case KindOpenSSH:
		return NewOpenSSH(hostname, config, log), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, config.Kind)
	}
}
