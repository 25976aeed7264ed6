package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/labfleet/fleetwatch/config"
	"github.com/labfleet/fleetwatch/internal/shell"
	"github.com/labfleet/fleetwatch/util/conf"
	"github.com/labfleet/fleetwatch/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const envPrefix = "FLEETWATCH_"

var (
	appName  = "fleetwatch"
	appUsage = `Keeps the test lab scheduler alive and talks to the drones
that run its jobs.`
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{envPrefix + "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{envPrefix + "LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "load configuration from a json or .env file.",
				Aliases: []string{"c"},
				EnvVars: []string{envPrefix + "CONFIG"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			// parse config using defaults, file and env
			cfg, err := parseConfig(ctx, log, nil)
			if err != nil {
				return err
			}

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return err
			}

			log.Sync()

			return nil
		},
	}
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

// parseConfig layers defaults, the config file and env vars. With a
// non-nil cliMap the flags set on ctx are layered on top, keyed by
// cliMap or by their name with dashes replaced.
func parseConfig(ctx *cli.Context, log *zap.Logger, cliMap map[string]string) (config.Config, error) {
	opts := conf.ParseOptions{
		Defaults:  config.DefaultConfig,
		EnvPrefix: envPrefix,
		FileName:  ctx.String("config"),
		Log:       log,
	}

	if cliMap != nil {
		opts.Cli = ctx
		opts.CliMap = cliMap
	}

	cfg, err := conf.Parse[config.Config](opts)
	if err != nil {
		return cfg, err
	}

	return cfg.WithInstallRoot(), nil
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

func Execute(params ExecuteParams) {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	run(context.Background(), os.Args)
}

func run(ctx context.Context, args []string) {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return
	}

	// cli.Exit errors carry their own message and exit code
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(coder.ExitCode())
	}

	// the shell already logged why the app exited
	if !errors.As(err, new(*shell.ExitError)) {
		fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())
	}

	os.Exit(shell.ExitCode(err))
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	level := getLogLevelFromCLI(ctx)
	format := getLogFormatFromCLI(ctx)

	var config zap.Config
	if format == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.InitialFields = map[string]any{
		"app": appName,
	}

	config.Level = level

	return config.Build()
}

func getLogFormatFromCLI(ctx *cli.Context) string {
	format := ctx.String("log-format")
	if format != "" {
		return format
	}

	return "production"
}

func getLogLevelFromCLI(ctx *cli.Context) zap.AtomicLevel {
	lvl := ctx.String("log-level")

	if atom, err := zap.ParseAtomicLevel(lvl); err == nil {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
