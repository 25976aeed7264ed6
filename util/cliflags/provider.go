// Package cliflags is a koanf.Provider for the flags set on a
// cli.Context. Flags left at their default are not provided, so that
// they do not shadow values from files or env vars.
package cliflags

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/maps"
	"github.com/urfave/cli/v2"
)

type CLIFlags struct {
	values map[string]any
}

// Provider collects the flags set on ctx and its parents. cb maps a
// flag name to its config key; with a non-empty delim, keys containing
// delim are unflattened into nested maps.
func Provider(ctx *cli.Context, delim string, cb func(string) string) *CLIFlags {
	known := map[string]cli.Flag{}
	for _, c := range ctx.Lineage() {
		var flags []cli.Flag
		if c.Command != nil {
			flags = append(flags, c.Command.VisibleFlags()...)
		}
		if c.App != nil {
			flags = append(flags, c.App.VisibleFlags()...)
		}

		for _, flag := range flags {
			name := flag.Names()[0]
			if _, ok := known[name]; !ok {
				known[name] = flag
			}
		}
	}

	values := make(map[string]any)

	for _, name := range ctx.FlagNames() {
		flag, ok := known[name]
		if !ok {
			continue
		}

		value, err := flagValue(ctx, flag)
		if err != nil {
			continue
		}

		key := name
		if cb != nil {
			key = cb(name)
		}
		values[key] = value
	}

	if delim != "" {
		values = maps.Unflatten(values, delim)
	}

	return &CLIFlags{values: values}
}

// ReadBytes is not supported by the cli provider.
func (p *CLIFlags) ReadBytes() ([]byte, error) {
	return nil, errors.New("cli provider does not support this method")
}

func (p *CLIFlags) Read() (map[string]any, error) {
	return p.values, nil
}

func flagValue(ctx *cli.Context, flag cli.Flag) (any, error) {
	name := flag.Names()[0]

	switch flag.(type) {
	case *cli.StringFlag:
		return ctx.String(name), nil
	case *cli.StringSliceFlag:
		return ctx.StringSlice(name), nil
	case *cli.PathFlag:
		return ctx.Path(name), nil
	case *cli.IntFlag:
		return ctx.Int(name), nil
	case *cli.IntSliceFlag:
		return ctx.IntSlice(name), nil
	case *cli.Int64Flag:
		return ctx.Int64(name), nil
	case *cli.Int64SliceFlag:
		return ctx.Int64Slice(name), nil
	case *cli.BoolFlag:
		return ctx.Bool(name), nil
	case *cli.Float64Flag:
		return ctx.Float64(name), nil
	case *cli.Float64SliceFlag:
		return ctx.Float64Slice(name), nil
	case *cli.DurationFlag:
		return ctx.Duration(name), nil
	default:
		return nil, fmt.Errorf("unsupported flag type %T", flag)
	}
}
