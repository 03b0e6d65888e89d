package secrets

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Source yields a secret value, or "" when it has nothing to offer
type Source func(ctx context.Context) (string, error)

// Chain is an ordered list of sources; the first non-empty value wins
type Chain []Source

// Resolve walks the chain and returns the first non-empty value. A source
// error stops the walk.
func (c Chain) Resolve(ctx context.Context) (string, error) {
	for _, src := range c {
		v, err := src(ctx)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

// Literal returns a source for a directly configured value
func Literal(value string) Source {
	return func(context.Context) (string, error) {
		return value, nil
	}
}

// File returns a source reading the secret from a local file. An unreadable
// file is logged and skipped.
func File(path string, logger *zap.Logger) Source {
	return func(context.Context) (string, error) {
		if path == "" {
			return "", nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read secret file, skipping", zap.String("path", path), zap.Error(err))
			return "", nil
		}
		return strings.TrimSpace(string(data)), nil
	}
}

// Parameter returns a source that looks the secret up by name in a parameter
// store. A nil store or empty name yields nothing.
func Parameter(store ParameterStore, name string) Source {
	return func(ctx context.Context) (string, error) {
		if store == nil || name == "" {
			return "", nil
		}
		return store.GetParameter(ctx, name)
	}
}
