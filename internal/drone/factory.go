package drone

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/labfleet/fleetwatch/internal/drone/transport"
	"github.com/labfleet/fleetwatch/internal/drone/utility"
	"github.com/labfleet/fleetwatch/internal/notify"
	"go.uber.org/zap"
)

type FactoryConfig struct {
	// TempDir is the working directory of the helper on remote hosts.
	// It is fixed for the lifetime of the factory.
	TempDir string `conf:"temp_dir"`

	// PayloadDir is where payload files are staged locally. Empty
	// means the system temp dir.
	PayloadDir string `conf:"payload_dir"`

	// HelperCommand is the helper binary on remote hosts. The temp
	// dir is appended as --temp-dir.
	HelperCommand string `conf:"helper_command"`

	Transport transport.Config `conf:"transport,squash"`

	Utility utility.Config `conf:"utility"`
}

// Factory creates drones sharing one configuration.
type Factory struct {
	config   FactoryConfig
	utility  *utility.Utility
	notifier notify.Notifier

	// newTransport creates the transport of a remote drone
	newTransport func(hostname string) (transport.Transport, error)

	log *zap.Logger
}

func NewFactory(config FactoryConfig, notifier notify.Notifier, log *zap.Logger) *Factory {
	if config.TempDir == "" {
		config.TempDir = "/tmp/fleetwatch"
	}
	if config.HelperCommand == "" {
		config.HelperCommand = "fleetwatch drone-helper"
	}

	f := &Factory{
		config:   config,
		utility:  utility.New(config.Utility, log),
		notifier: notifier,
		log:      log,
	}

	f.newTransport = func(hostname string) (transport.Transport, error) {
		return transport.New(hostname, f.config.Transport, f.log)
	}

	return f
}

// New creates the drone for params.Hostname: the local drone for
// localhost, a remote drone otherwise.
func (f *Factory) New(ctx context.Context, params Params) (Drone, error) {
	if params.Hostname == "" {
		return nil, fmt.Errorf("drone without hostname")
	}

	if params.Hostname == LocalHostname {
		return NewLocalDrone(params, f.utility, f.notifier, f.log), nil
	}

	t, err := f.newTransport(params.Hostname)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %s: %w", params.Hostname, err)
	}

	return NewRemoteDrone(ctx, RemoteParams{
		Params:        params,
		Transport:     t,
		HelperCommand: f.helperCommand(),
		TempDir:       f.config.TempDir,
		PayloadDir:    f.config.PayloadDir,
		Notifier:      f.notifier,
		Log:           f.log,
	}), nil
}

func (f *Factory) helperCommand() string {
	return strings.Join([]string{
		f.config.HelperCommand,
		"--temp-dir", shellQuote(filepath.Clean(f.config.TempDir)),
	}, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
