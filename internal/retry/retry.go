// Package retry provides an explicit exponential-backoff retry combinator so
// call sites show exactly what gets retried and with what budget.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures a retry loop: attempts beyond the first, the initial
// delay, the growth multiplier and the jitter fraction applied to each delay.
type Policy struct {
	MaxRetries   uint64
	InitialDelay time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultPolicy mirrors the retry budget used against the scoring and
// reasoning services: 3 retries starting at 1s, doubling, with full jitter.
var DefaultPolicy = Policy{
	MaxRetries:   3,
	InitialDelay: time.Second,
	Multiplier:   2.0,
	Jitter:       0.5,
}

// Permanent wraps err so Do stops retrying and returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op, retrying on error per the policy. Context cancellation stops
// the loop and returns the context error. Errors wrapped with Permanent are
// returned without further attempts.
func Do(ctx context.Context, p Policy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
