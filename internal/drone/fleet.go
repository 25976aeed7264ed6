package drone

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fleet is the set of drones known to the scheduler, keyed by hostname.
type Fleet struct {
	drones map[string]Drone

	// refresh is the call used to probe drones for running processes
	refresh calls.Refresh

	log *zap.Logger
}

type FleetConfig struct {
	Hosts []Params `conf:"hosts"`

	// ProcessName is the process counted as active on each drone.
	ProcessName string `conf:"process_name"`

	// Pidfiles are read from every drone on refresh.
	Pidfiles []string `conf:"pidfiles"`
}

// NewFleet creates one drone per configured host. Drones created
// before a failure are closed again.
func NewFleet(ctx context.Context, config FleetConfig, factory *Factory, log *zap.Logger) (*Fleet, error) {
	f := &Fleet{
		drones: make(map[string]Drone, len(config.Hosts)),
		refresh: calls.Refresh{
			PidfilePaths: config.Pidfiles,
			ProcessName:  config.ProcessName,
		},
		log: log.Named("fleet"),
	}

	for _, params := range config.Hosts {
		if _, ok := f.drones[params.Hostname]; ok {
			f.Close()
			return nil, fmt.Errorf("duplicate drone %s", params.Hostname)
		}

		d, err := factory.New(ctx, params)
		if err != nil {
			f.Close()
			return nil, err
		}

		f.drones[params.Hostname] = d
	}

	return f, nil
}

// Drones returns all drones ordered by hostname.
func (f *Fleet) Drones() []Drone {
	drones := make([]Drone, 0, len(f.drones))
	for _, d := range f.drones {
		drones = append(drones, d)
	}

	sort.Slice(drones, func(i, j int) bool {
		return drones[i].Hostname() < drones[j].Hostname()
	})

	return drones
}

func (f *Fleet) Get(hostname string) (Drone, error) {
	d, ok := f.drones[hostname]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDrone, hostname)
	}
	return d, nil
}

// Select returns the least loaded eligible drone.
func (f *Fleet) Select() (Drone, error) {
	return SelectLeastLoaded(f.Drones())
}

// Refresh probes every enabled drone for its running processes and
// updates its active process count. Drones are probed concurrently;
// a drone that cannot be reached is disabled and the error returned.
func (f *Fleet) Refresh(ctx context.Context) error {
	var g errgroup.Group

	for _, d := range f.Drones() {
		if !d.Enabled() {
			continue
		}

		d := d
		g.Go(func() error {
			// a call of its own; queued calls stay with whoever queued them
			result, err := d.Call(ctx, f.refresh)
			if err != nil {
				f.log.Error("refresh failed, disabling drone",
					zap.String("host", d.Hostname()),
					zap.Error(err),
				)
				d.SetEnabled(false)
				return fmt.Errorf("failed to refresh %s: %w", d.Hostname(), err)
			}

			res, ok := result.(calls.RefreshResult)
			if !ok {
				return fmt.Errorf("unexpected refresh result from %s: %T", d.Hostname(), result)
			}

			d.SetActiveProcesses(len(res.Processes))
			return nil
		})
	}

	return g.Wait()
}

// Close closes the connections of all drones.
func (f *Fleet) Close() error {
	var errs []error
	for _, d := range f.drones {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", d.Hostname(), err))
		}
	}
	return errors.Join(errs...)
}
