// Package shell runs an fx application until it is signalled to stop
// and maps the outcome to a process exit code.
package shell

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type Shell struct {
	log     *zap.Logger
	options []fx.Option
}

func New(log *zap.Logger, options ...fx.Option) *Shell {
	return &Shell{
		log:     log,
		options: options,
	}
}

// Run starts the app built from the shell options and the given
// options, blocks until a shutdown signal and stops it again. A clean
// stop with exit code 0 returns nil; anything else an *ExitError.
func (s *Shell) Run(ctx context.Context, options ...fx.Option) error {
	// after run ends, flush the logger
	defer s.log.Sync()

	// the app context is cancelled once Run returns, after the stop
	// hooks ran
	appCtx, cancelApp := context.WithCancel(ctx)
	defer cancelApp()

	app := s.newApp(appCtx, options...)
	if err := app.Err(); err != nil {
		s.log.Error("invalid application graph", zap.Error(err))
		return NewExitError(1)
	}

	// start the application, exit on error
	if err := s.withTimeout(ctx, app.StartTimeout(), app.Start); err != nil {
		s.log.Error("failed to start", zap.Error(err))
		return NewExitError(1)
	}

	// wait for a signal by the OS or a shutdown by a component
	sig := <-app.Wait()
	s.log.Info("stopping", zap.Any("signal", sig.Signal), zap.Int("exit_code", sig.ExitCode))

	// gracefully shutdown the app, exit on error
	if err := s.withTimeout(ctx, app.StopTimeout(), app.Stop); err != nil {
		s.log.Error("failed to stop", zap.Error(err))
		return NewExitError(1)
	}

	if sig.ExitCode != 0 {
		return NewExitError(sig.ExitCode)
	}

	return nil
}

func (s *Shell) withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	return fn(ctx)
}

func (s *Shell) newApp(ctx context.Context, options ...fx.Option) *fx.App {
	return fx.New(
		// inject global execution context
		fx.Supply(fx.Annotate(ctx, fx.As(new(context.Context)))),

		// inject the logger
		fx.Supply(s.log),

		// use the logger also for fx' logs
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: s.log.Named("fx")}
		}),

		// shell options shared by all commands
		fx.Options(s.options...),

		// options of the command being run
		fx.Options(options...),
	)
}
