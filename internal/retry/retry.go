// Package retry wraps outbound calls with bounded exponential backoff.
//
// The delay doubles after every transient failure. There is no jitter and no
// ceiling unless Policy.MaxDelay is set. Only failures classified as transient
// are retried; everything else is returned to the caller unchanged.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy bounds a retry loop
type Policy struct {
	// Retries is the number of additional attempts after the first call.
	Retries int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// MaxDelay clamps the doubled delay. Zero means no ceiling.
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used for remote inference calls
func DefaultPolicy() Policy {
	return Policy{
		Retries:      3,
		InitialDelay: 2000 * time.Millisecond,
	}
}

// Attempts returns the total number of calls the policy allows.
func (p Policy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// ExhaustedError is returned when every attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("temporarily unavailable after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// sleep waits for d or until ctx is done. Replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op, retrying transient failures according to p. Intermediate
// failures are not observable; the caller sees the final result only.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := p.InitialDelay
	attempts := p.Attempts()

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		failure := Describe(err)
		if Classify(failure) != Transient {
			return result, err
		}
		if attempt >= attempts {
			var zero T
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		wait := delay
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}

		logger.Warn("transient failure, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Int("status", failure.Status),
			zap.Duration("delay", wait),
			zap.Error(err))

		if err := sleep(ctx, wait); err != nil {
			var zero T
			return zero, err
		}
		delay *= 2
	}
}
