package drone

import (
	"context"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"github.com/labfleet/fleetwatch/internal/drone/utility"
	"github.com/labfleet/fleetwatch/internal/notify"
	"go.uber.org/zap"
)

// LocalHostname names the drone of the host fleetwatch runs on.
const LocalHostname = "localhost"

// LocalDrone executes calls in-process on the local host.
type LocalDrone struct {
	*base

	utility *utility.Utility
}

var _ Drone = (*LocalDrone)(nil)

func NewLocalDrone(params Params, u *utility.Utility, notifier notify.Notifier, log *zap.Logger) *LocalDrone {
	d := &LocalDrone{utility: u}
	d.base = newBase(params, true, notifier, log.Named("drone_local"))
	d.base.executor = d

	return d
}

func (d *LocalDrone) execute(ctx context.Context, batch []calls.Call) (calls.Response, error) {
	return d.utility.ExecuteBatch(ctx, batch), nil
}

func (d *LocalDrone) Close() error {
	return nil
}
