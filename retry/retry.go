// Package retry provides the exponential-backoff executor used by every
// component that touches the network. Delays grow as
// base * multiplier^(attempt-1), scaled by a uniform jitter in [0.5, 1.5]
// and capped at a maximum. A caller-supplied predicate decides which
// failures are worth another attempt; by default only transient classes
// (network, timeout, rate-limit, server) are retried.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
)

// Options configures retry behavior.
type Options struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// Multiplier grows the delay between consecutive attempts.
	Multiplier float64

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// RetryIf decides whether a failure is retryable.
	RetryIf func(error) bool

	// OnRetry is invoked before each wait with the attempt number that
	// just failed and its error.
	OnRetry func(attempt int, err error)

	// jitter is overridable for deterministic tests.
	jitter func() float64
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the retry defaults shared by most callers.
func DefaultOptions() *Options {
	return &Options{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		RetryIf:     apierrors.Retryable,
		jitter:      func() float64 { return 0.5 + rand.Float64() },
	}
}

// WithMaxAttempts sets the total attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithBaseDelay sets the delay before the second attempt.
func WithBaseDelay(d time.Duration) Option {
	return func(o *Options) { o.BaseDelay = d }
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(o *Options) { o.Multiplier = m }
}

// WithMaxDelay caps the inter-attempt delay.
func WithMaxDelay(d time.Duration) Option {
	return func(o *Options) { o.MaxDelay = d }
}

// WithRetryIf sets a custom retryable predicate.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *Options) { o.RetryIf = fn }
}

// WithOnRetry registers a hook invoked before each wait.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(o *Options) { o.OnRetry = fn }
}

// Do runs op, retrying per the options. On exhausting the attempt budget
// the failure from the final attempt is returned unchanged.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	_, err := DoValue(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// DoValue runs op and returns its value, retrying per the options.
func DoValue[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= options.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == options.MaxAttempts {
			break
		}
		if options.RetryIf != nil && !options.RetryIf(err) {
			break
		}
		if options.OnRetry != nil {
			options.OnRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(Delay(options, attempt)):
		}
	}

	return zero, lastErr
}

// Delay computes the wait after the given failed attempt (1-based).
func Delay(o *Options, attempt int) time.Duration {
	ideal := float64(o.BaseDelay)
	for i := 1; i < attempt; i++ {
		ideal *= o.Multiplier
	}
	jitter := 1.0
	if o.jitter != nil {
		jitter = o.jitter()
	}
	d := time.Duration(ideal * jitter)
	if d > o.MaxDelay {
		d = o.MaxDelay
	}
	return d
}
