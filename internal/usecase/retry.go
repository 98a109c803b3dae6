package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"agroconecta-billing/internal/domain"
)

// RetryPolicy bounds retries of idempotent gateway reads. Attempts counts the
// first call; the delay doubles after every failure.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Backoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. Only unavailable/timeout gateway failures are
// retried; a rejection is final. Never use it for gateway writes.
func (p RetryPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	err := backoff.Retry(func() error {
		last = fn(ctx)
		if last != nil && !retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, p.newBackOff(ctx))
	if err != nil && last != nil {
		// keep the gateway classification when the context ends the loop
		return last
	}
	return err
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrGatewayUnavailable) || errors.Is(err, domain.ErrGatewayTimeout)
}
