package secrets

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Bundle holds the secrets the pipeline needs. An empty field means the
// feature depending on it is disabled.
type Bundle struct {
	SigningKey    string
	CaptchaSecret string
}

// Resolver resolves the Bundle at most once per process. Concurrent callers
// share the result of a single in-flight resolution; a failed resolution is
// not cached, so the next caller tries again.
type Resolver struct {
	signingKey    Chain
	captchaSecret Chain
	logger        *zap.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	bundle *Bundle
}

// NewResolver creates a resolver over the two source chains
func NewResolver(signingKey, captchaSecret Chain, logger *zap.Logger) *Resolver {
	return &Resolver{
		signingKey:    signingKey,
		captchaSecret: captchaSecret,
		logger:        logger,
	}
}

// Resolve returns the process-wide Bundle, resolving it on first use
func (r *Resolver) Resolve(ctx context.Context) (Bundle, error) {
	if b, ok := r.cached(); ok {
		return b, nil
	}

	// The lookup outlives any one caller; each caller only stops waiting.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("bundle", func() (interface{}, error) {
		// A flight that finished between cached() and DoChan already stored it.
		if b, ok := r.cached(); ok {
			return b, nil
		}

		b, err := r.load(flightCtx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.bundle = &b
		r.mu.Unlock()

		r.logger.Info("resolved secrets",
			zap.Bool("signing_key_present", b.SigningKey != ""),
			zap.Bool("captcha_secret_present", b.CaptchaSecret != ""),
		)
		return b, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		r.logger.Error("failed to resolve secrets", zap.Bool("shared", res.Shared), zap.Error(res.Err))
		return Bundle{}, res.Err
	}

	return res.Val.(Bundle), nil
}

func (r *Resolver) cached() (Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.bundle == nil {
		return Bundle{}, false
	}
	return *r.bundle, true
}

func (r *Resolver) load(ctx context.Context) (Bundle, error) {
	signingKey, err := r.signingKey.Resolve(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to resolve signing key: %w", err)
	}

	captchaSecret, err := r.captchaSecret.Resolve(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to resolve captcha secret: %w", err)
	}

	return Bundle{
		SigningKey:    signingKey,
		CaptchaSecret: captchaSecret,
	}, nil
}
