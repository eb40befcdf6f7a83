package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voltbase/scooterdex-backend/internal/logger"
)

// DelayPolicy yields the wait before the given retry attempt (1-based; the
// delay before attempt N+1 is Delay(N)).
type DelayPolicy interface {
	Delay(attempt int) time.Duration
}

type FixedDelay struct {
	Interval time.Duration
}

func (p FixedDelay) Delay(int) time.Duration { return p.Interval }

type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (p ExponentialBackoff) Delay(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	return d
}

// terminalError marks an error that retrying cannot fix (validation errors,
// malformed responses). ExecuteWithRetry stops on it immediately.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so ExecuteWithRetry will not retry it.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}

// RetryExhaustedError is returned when every attempt failed with a retryable
// error.
type RetryExhaustedError struct {
	Label    string
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

// ExecuteWithRetry runs op up to maxAttempts times, waiting per policy
// between attempts. A Terminal-wrapped error or context cancellation stops
// the loop at once; anything else is retried.
func ExecuteWithRetry(ctx context.Context, log *logger.Logger, label string, maxAttempts int, policy DelayPolicy, op func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Attempting operation", "op", label, "attempt", attempt, "max_attempts", maxAttempts)
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if IsTerminal(lastErr) {
			log.Warn("Operation failed terminally", "op", label, "attempt", attempt, "error", lastErr.Error())
			return lastErr
		}
		if attempt < maxAttempts {
			delay := policy.Delay(attempt)
			log.Warn("Operation failed, retrying",
				"op", label,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"sleep", delay.String(),
				"error", lastErr.Error(),
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}
	}
	return &RetryExhaustedError{Label: label, Attempts: maxAttempts, LastErr: lastErr}
}
