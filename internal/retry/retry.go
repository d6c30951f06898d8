// Package retry runs idempotent operations with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultBase     = 200 * time.Millisecond
	defaultMaxDelay = 5 * time.Second
)

// Policy configures Do. The zero value makes a single attempt.
type Policy struct {
	Attempts int
	Base     time.Duration
	MaxDelay time.Duration
	// Retryable reports whether err is worth another attempt. nil retries everything
	// except errors wrapped with Permanent. A done ctx always stops the loop.
	Retryable func(error) bool

	// timer is replaced in tests.
	timer backoff.Timer
}

// New returns a policy with the default schedule: 200ms doubling, capped at 5s.
func New(attempts int) Policy {
	return Policy{Attempts: attempts, Base: defaultBase, MaxDelay: defaultMaxDelay}
}

// schedule builds a fresh jitter-free exponential backoff with no elapsed-time limit.
func (p Policy) schedule() *backoff.ExponentialBackOff {
	base, maxDelay := p.Base, p.MaxDelay
	if base <= 0 {
		base = defaultBase
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if base > maxDelay {
		base = maxDelay
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Delay returns the wait before the attempt following the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	b := p.schedule()
	d := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, or attempts run out.
// The last error is returned unchanged so callers can match it with errors.Is.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // caller checks ctx itself
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	op := func() error {
		last = fn(ctx)
		if last != nil && p.Retryable != nil && !p.Retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}
	b := backoff.WithContext(backoff.WithMaxRetries(p.schedule(), uint64(attempts-1)), ctx)

	err := backoff.RetryNotifyWithTimer(op, b, nil, p.timer)
	if err != nil && last != nil && ctx.Err() != nil {
		// canceled while waiting: report what the operation said, not the ctx
		return last
	}
	return err //nolint:wrapcheck // returned unchanged for errors.Is
}

// Permanent marks err as not retryable. Do returns the wrapped error itself.
func Permanent(err error) error {
	return backoff.Permanent(err) //nolint:wrapcheck // unwrapped again by Do
}
