package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"strconv"

	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Native is an in-process ssh client. The connection to the host is
// held in a pool of size one: it is dialed on first use, reused by
// later runs and destroyed after a connection-level failure so that
// the next run dials again.
type Native struct {
	hostname string
	addr     string
	pool     *puddle.Pool[*ssh.Client]

	// agentConn is the ssh-agent connection shared by every dial, if any
	agentConn net.Conn

	log *zap.Logger
}

var _ Transport = (*Native)(nil)

func NewNative(hostname string, config Config, log *zap.Logger) (*Native, error) {
	t := &Native{
		hostname: hostname,
		addr:     net.JoinHostPort(hostname, strconv.Itoa(config.SSH.Port)),
		log:      log.Named("transport_native").With(zap.String("host", hostname)),
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" && config.SSH.KeyFile == "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ssh agent: %w", err)
		}
		t.agentConn = conn
	}

	clientConfig, err := clientConfig(config, t.agentConn)
	if err != nil {
		t.closeAgent()
		return nil, err
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}

	constructor := func(ctx context.Context) (*ssh.Client, error) {
		t.log.Debug("dialing")

		conn, err := dialer.DialContext(ctx, "tcp", t.addr)
		if err != nil {
			return nil, err
		}

		c, chans, reqs, err := ssh.NewClientConn(conn, t.addr, clientConfig)
		if err != nil {
			conn.Close()
			return nil, err
		}

		return ssh.NewClient(c, chans, reqs), nil
	}

	destructor := func(c *ssh.Client) {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.log.Debug("error closing connection", zap.Error(err))
		}
	}

	pool, err := puddle.NewPool(&puddle.Config[*ssh.Client]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     1,
	})
	if err != nil {
		t.closeAgent()
		return nil, err
	}

	t.pool = pool

	return t, nil
}

func (t *Native) Run(ctx context.Context, command string, stdin io.Reader) ([]byte, error) {
	resource, err := t.pool.Acquire(ctx)
	if errors.Is(err, puddle.ErrClosedPool) {
		return nil, ErrClosed
	} else if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.hostname, err)
	}

	out, err := t.run(ctx, resource.Value(), command, stdin)

	var exitErr *ssh.ExitError
	if err == nil || errors.As(err, &exitErr) {
		resource.Release()
	} else {
		t.log.Debug("destroying connection due to error", zap.Error(err))
		resource.Destroy()
	}

	if err != nil {
		return out, fmt.Errorf("failed to run command on %s: %w", t.hostname, err)
	}

	return out, nil
}

func (t *Native) run(ctx context.Context, client *ssh.Client, command string, stdin io.Reader) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	session.Stdin = stdin

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	out, err := session.CombinedOutput(command)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}

	return out, err
}

func (t *Native) Close() error {
	t.pool.Close()
	return t.closeAgent()
}

func (t *Native) closeAgent() error {
	if t.agentConn == nil {
		return nil
	}
	if err := t.agentConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close ssh agent connection: %w", err)
	}
	return nil
}

// MARK: - client config

func clientConfig(config Config, agentConn net.Conn) (*ssh.ClientConfig, error) {
	username := config.SSH.User
	if username == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("failed to determine ssh user: %w", err)
		}
		username = u.Username
	}

	auth, err := authMethods(config.SSH, agentConn)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(config.SSH)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.ConnectTimeout,
	}, nil
}

func authMethods(config SSHConfig, agentConn net.Conn) ([]ssh.AuthMethod, error) {
	if config.KeyFile != "" {
		key, err := os.ReadFile(config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key: %w", err)
		}

		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ssh key %s: %w", config.KeyFile, err)
		}

		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if agentConn != nil {
		return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers)}, nil
	}

	return nil, nil
}

func hostKeyCallback(config SSHConfig) (ssh.HostKeyCallback, error) {
	if config.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := config.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		path = home + "/.ssh/known_hosts"
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return callback, nil
}
