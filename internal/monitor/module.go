package monitor

import (
	"context"
	"os"

	"github.com/labfleet/fleetwatch/internal/notify"
	"github.com/labfleet/fleetwatch/internal/pidfile"
	"github.com/labfleet/fleetwatch/util/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Options are the per-invocation settings of the watchdog.
type Options struct {
	Recover     bool
	LogDir      string
	ResultsDir  string
	DatabaseDSN string
}

func Module(opts Options) fx.Option {
	return fx.Module(
		"monitor",
		// rename logger for module
		logging.DecorateLogger("monitor"),
		// provide options
		fx.Supply(opts),
		// provide supervisor
		fx.Provide(NewLifecycleSupervisor),
		// provide status route, served when the server module is used
		fx.Provide(NewStatusRoute),
		// invoke supervisor
		fx.Invoke(func(*Supervisor) {}),
	)
}

type LifecycleParams struct {
	fx.In

	Context  context.Context
	Config   Config
	Options  Options
	Notifier notify.Notifier
	Log      *zap.Logger
}

// NewLifecycleSupervisor runs the supervisor for the lifetime of the
// app. The watchdog pidfile exists while the supervisor runs; on stop
// the daemon is stopped and both pidfiles are removed.
func NewLifecycleSupervisor(params LifecycleParams, lc fx.Lifecycle) *Supervisor {
	var dumpers []Dumper
	if params.Options.DatabaseDSN != "" {
		dumpers = append(dumpers, NewProcesslist(params.Options.DatabaseDSN))
	}

	sv := New(Params{
		Config:     params.Config,
		LogDir:     params.Options.LogDir,
		ResultsDir: params.Options.ResultsDir,
		Recover:    params.Options.Recover,
		Diagnostics: NewDiagnostics(DiagnosticsParams{
			Dumpers: dumpers,
			Timeout: params.Config.DiagnosticTimeout,
			Log:     params.Log,
		}),
		Notifier: params.Notifier,
		Log:      params.Log,
	})

	ctx, cancel := context.WithCancel(params.Context)
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if sv.config.Pidfile != "" {
				if err := pidfile.Write(sv.config.Pidfile, os.Getpid()); err != nil {
					cancel()
					return err
				}
			}

			go func() {
				defer close(done)
				sv.Run(ctx)
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
			case <-stopCtx.Done():
				params.Log.Error("supervisor did not stop in time")
			}

			if sv.config.Pidfile != "" {
				return pidfile.Remove(sv.config.Pidfile)
			}

			return nil
		},
	})

	return sv
}
