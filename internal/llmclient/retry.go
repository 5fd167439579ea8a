package llmclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

// requester holds the retry and pacing policy shared by every provider.
type requester struct {
	cfg        config.ModelConfig
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

func newRequester(cfg config.ModelConfig, logger *zap.Logger) requester {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return requester{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: logger,
	}
}

// do runs op under the rate limiter with bounded exponential backoff. op
// marks non-retryable failures with backoff.Permanent.
func do[T any](ctx context.Context, r requester, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		var zero T
		if err := r.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}

		start := time.Now()
		res, err := op(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, backoff.Permanent(ctxErr)
			}
			return zero, err
		}
		r.logger.Debug("Model request complete.", zap.Int("attempt", attempt), zap.Duration("duration", time.Since(start)))
		return res, nil
	},
		backoff.WithMaxTries(r.cfg.MaxRetries+1),
		backoff.WithMaxElapsedTime(r.cfg.MaxRetryElapsed),
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("Model request failed, retrying.", zap.Int("attempt", attempt), zap.Duration("backoff", next), zap.Error(err))
		}),
	)
}

// permanentUnlessTransient wraps endpoint errors that retrying cannot fix.
func permanentUnlessTransient(err error) error {
	var epErr *EndpointError
	if errors.As(err, &epErr) && !epErr.Transient() {
		return backoff.Permanent(err)
	}
	return err
}
