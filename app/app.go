package app

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labfleet/fleetwatch/config"
	"github.com/labfleet/fleetwatch/internal/monitor"
	"github.com/labfleet/fleetwatch/internal/notify"
	"github.com/labfleet/fleetwatch/internal/shell"
	"github.com/labfleet/fleetwatch/util/conf"
	"github.com/labfleet/fleetwatch/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	sharedModule := fx.Module(
		"shared",
		// provide global config
		fx.Supply(config),
		// provide monitor config
		fx.Supply(config.Monitor),
		// provide notifier
		fx.Provide(NewLifecycleNotifier),
	)

	return shell.New(log, sharedModule, fx.StopTimeout(stopTimeout(config))), nil
}

// stopTimeout leaves room for the daemon to be interrupted and killed,
// each bounded by the kill grace period.
func stopTimeout(config config.Config) time.Duration {
	grace := config.Monitor.KillGrace
	if grace <= 0 {
		grace = monitor.DefaultKillGrace
	}
	return 2*grace + 15*time.Second
}

type NotifierParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// NewLifecycleNotifier fans notifications out to the log and, when
// configured, to email and sentry. Queued mail is flushed on stop.
func NewLifecycleNotifier(params NotifierParams, lc fx.Lifecycle) notify.Notifier {
	notifier := NewNotifier(params.Config.Notify, params.Log)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			CloseNotifier(notifier)
			return nil
		},
	})

	return notifier
}

// NewNotifier builds the notifier described by config. Outside of fx
// the caller is responsible for CloseNotifier.
func NewNotifier(config config.NotifyConfig, log *zap.Logger) notify.Multi {
	notifiers := notify.Multi{notify.NewLogNotifier(log)}

	if config.Email.Enabled() {
		notifiers = append(notifiers, notify.NewEmailNotifier(config.Email, log))
	}

	if config.Sentry && sentry.CurrentHub().Client() != nil {
		notifiers = append(notifiers, notify.NewSentryNotifier(nil))
	}

	return notifiers
}

// CloseNotifier sends what a notifier from NewNotifier still has
// queued: pending mail and buffered sentry events.
func CloseNotifier(notifier notify.Multi) {
	for _, n := range notifier {
		switch n := n.(type) {
		case *notify.EmailNotifier:
			n.Close()
		case *notify.SentryNotifier:
			n.Flush(2 * time.Second)
		}
	}
}
