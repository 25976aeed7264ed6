package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/labfleet/fleetwatch/app"
	"github.com/labfleet/fleetwatch/internal/drone"
	"github.com/labfleet/fleetwatch/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	dronesCmdDescription = `The drones command refreshes every configured drone and prints
its load: the number of running job processes against the
maximum the drone accepts.

Drones that cannot be reached are reported as disabled. The
drone a new job would be placed on is marked with *.`
	dronesCmd = &cli.Command{
		Name:        "drones",
		Usage:       "Refresh the drone fleet and print its load.",
		Description: dronesCmdDescription,
		Action:      dronesAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "transport",
				Usage:    "the transport used to reach drones. Options: native, openssh.",
				Category: "drones",
			},
			&cli.DurationFlag{
				Name:     "connect-timeout",
				Usage:    "the timeout for connecting to a drone.",
				Category: "drones",
			},
			&cli.StringFlag{
				Name:     "ssh-user",
				Usage:    "the user to log in as on drones.",
				Category: "drones",
			},
		},
	}

	dronesFlagKeys = map[string]string{
		"transport":       "drones.transport",
		"connect-timeout": "drones.connect_timeout",
		"ssh-user":        "drones.ssh.user",
	}
)

func dronesAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	// reparse, so that the drone flags of this command take effect
	cfg, err := parseConfig(ctx, log, dronesFlagKeys)
	if err != nil {
		return err
	}

	notifier := app.NewNotifier(cfg.Notify, log)
	defer app.CloseNotifier(notifier)

	factory := drone.NewFactory(cfg.Drones.FactoryConfig, notifier, log)

	fleet, err := drone.NewFleet(ctx.Context, cfg.Drones.FleetConfig, factory, log)
	if err != nil {
		return err
	}
	defer fleet.Close()

	if err := fleet.Refresh(ctx.Context); err != nil {
		log.Warn("refresh incomplete", zap.Error(err))
	}

	selected, err := fleet.Select()
	if err != nil && !errors.Is(err, drone.ErrNoEligibleDrone) {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tHOSTNAME\tENABLED\tPROCESSES\tCAPACITY")

	for _, d := range fleet.Drones() {
		mark := ""
		if selected != nil && d.Hostname() == selected.Hostname() {
			mark = "*"
		}

		fmt.Fprintf(w, "%s\t%s\t%t\t%d/%d\t%.2f\n",
			mark,
			d.Hostname(),
			d.Enabled(),
			d.ActiveProcesses(),
			d.MaxProcesses(),
			d.UsedCapacity(),
		)
	}

	return w.Flush()
}

func init() {
	rootApp.Commands = append(rootApp.Commands, dronesCmd)
}
