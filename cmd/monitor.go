package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/labfleet/fleetwatch/app"
	"github.com/labfleet/fleetwatch/config"
	"github.com/labfleet/fleetwatch/internal/monitor"
	"github.com/labfleet/fleetwatch/internal/pidfile"
	"github.com/labfleet/fleetwatch/internal/process"
	"github.com/labfleet/fleetwatch/internal/server"
	"github.com/labfleet/fleetwatch/util/conf"
	"github.com/labfleet/fleetwatch/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	monitorCmdDescription = `The monitor command starts the scheduler and keeps it alive.

The scheduler is restarted in recovery mode whenever it exits or
its log stops growing for the whole stall timeout. Before a
stalled scheduler is restarted, a diagnostic snapshot of the host
is written next to its log.

With --background the watchdog detaches from the terminal and
keeps running after the shell exits.`
	monitorCmd = &cli.Command{
		Name:        "monitor",
		Usage:       "Start the scheduler and restart it when it dies or stalls.",
		Description: monitorCmdDescription,
		Action:      monitorAction,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "recover",
				Usage:    "start the first scheduler in recovery mode.",
				Category: "monitor",
				EnvVars:  []string{envPrefix + "RECOVER"},
			},
			&cli.BoolFlag{
				Name:     "background",
				Usage:    "detach from the terminal and run in the background.",
				Category: "monitor",
			},
		},
	}

	geteuid = os.Geteuid
)

func monitorAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	if geteuid() == 0 {
		return cli.Exit("the monitor must not run as root", 1)
	}

	if pid, ok := pidfile.Running(cfg.Monitor.Pidfile); ok {
		return cli.Exit(fmt.Sprintf("monitor already running with pid %d", pid), 1)
	}

	if ctx.Bool("background") {
		return detachMonitor(cfg, log)
	}

	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	options := []fx.Option{
		monitor.Module(monitor.Options{
			Recover:     ctx.Bool("recover"),
			LogDir:      cfg.LogDir,
			ResultsDir:  cfg.ResultsDir,
			DatabaseDSN: cfg.Database.DSN,
		}),
	}

	if cfg.Status.Enabled() {
		options = append(options, server.Module(cfg.Status))
	}

	return app.Run(ctx.Context, options...)
}

// detachMonitor starts this binary again without --background in a new
// session and returns once it is running.
func detachMonitor(cfg config.Config, log *zap.Logger) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}

	pid, err := process.StartDetached(process.StartConfig{
		Cmd:     exe,
		Args:    foregroundArgs(os.Args[1:]),
		LogFile: filepath.Join(cfg.LogDir, "monitor.log"),
	}, log)
	if err != nil {
		return err
	}

	fmt.Printf("monitor started in the background with pid %d\n", pid)

	return nil
}

func foregroundArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch arg {
		case "--background", "-background", "--background=true", "-background=true":
			continue
		}
		out = append(out, arg)
	}
	return out
}

func init() {
	rootApp.Commands = append(rootApp.Commands, monitorCmd)
}
