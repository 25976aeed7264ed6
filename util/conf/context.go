package conf

import (
	"context"
	"errors"
)

type configKey struct{}

var (
	ErrNoConfigInContext      = errors.New("config not found in context")
	ErrInvalidConfigInContext = errors.New("invalid config in context")
)

func ContextWithConfig[C any](ctx context.Context, config C) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfigFromContext returns the config stored by ContextWithConfig.
// C must be the exact type that was stored.
func GetConfigFromContext[C any](ctx context.Context) (C, error) {
	var zero C

	value := ctx.Value(configKey{})
	if value == nil {
		return zero, ErrNoConfigInContext
	}

	config, ok := value.(C)
	if !ok {
		return zero, ErrInvalidConfigInContext
	}

	return config, nil
}
