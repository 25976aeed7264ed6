package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/labfleet/fleetwatch/config"
	"github.com/labfleet/fleetwatch/internal/drone/helper"
	"github.com/labfleet/fleetwatch/internal/drone/utility"
	"github.com/labfleet/fleetwatch/util/conf"
	"github.com/labfleet/fleetwatch/util/logging"
	"github.com/urfave/cli/v2"
)

var (
	helperCmdDescription = `The drone-helper command is started on drones over ssh. It
reads one batch of calls from stdin, executes them on the drone
and writes a single response to stdout.

Its own log goes to a file in the temp dir, since stdout and
stderr carry the response.`
	helperCmd = &cli.Command{
		Name:        "drone-helper",
		Usage:       "Execute one batch of drone calls read from stdin.",
		Description: helperCmdDescription,
		Action:      helperAction,
		Hidden:      true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "temp-dir",
				Usage:    "the working directory of the helper on this drone.",
				Required: true,
			},
		},
	}
)

func helperAction(ctx *cli.Context) error {
	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	tempDir := ctx.String("temp-dir")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	log, err := logging.NewFileLogger(filepath.Join(tempDir, "drone-helper.log"), getLogLevelFromCLI(ctx))
	if err != nil {
		return err
	}
	defer log.Sync()

	h, err := helper.New(utility.New(cfg.Drones.Utility, log), log)
	if err != nil {
		return err
	}

	return h.Serve(ctx.Context, os.Stdin, os.Stdout)
}

func init() {
	rootApp.Commands = append(rootApp.Commands, helperCmd)
}
