package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voltbase/scooterdex-backend/internal/logger"
)

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestExecuteWithRetrySucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), testLog(t), "flaky op", 3, FixedDelay{Interval: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("call count: want=3 got=%d", calls)
	}
}

func TestExecuteWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	failure := errors.New("still broken")
	err := ExecuteWithRetry(context.Background(), testLog(t), "doomed op", 3, FixedDelay{Interval: time.Millisecond}, func(context.Context) error {
		calls++
		return failure
	})
	if calls != 3 {
		t.Fatalf("call count: want=3 got=%d", calls)
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("attempts: want=3 got=%d", exhausted.Attempts)
	}
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped last error, got %v", err)
	}
}

func TestExecuteWithRetryStopsOnTerminalError(t *testing.T) {
	calls := 0
	cause := errors.New("bad input")
	err := ExecuteWithRetry(context.Background(), testLog(t), "terminal op", 5, FixedDelay{Interval: time.Millisecond}, func(context.Context) error {
		calls++
		return Terminal(cause)
	})
	if calls != 1 {
		t.Fatalf("terminal error must not be retried, got %d calls", calls)
	}
	if !IsTerminal(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestExecuteWithRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := ExecuteWithRetry(ctx, testLog(t), "canceled op", 3, FixedDelay{Interval: time.Millisecond}, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	if calls != 0 {
		t.Fatalf("canceled context must not run the op, got %d calls", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTerminalNilStaysNil(t *testing.T) {
	if Terminal(nil) != nil {
		t.Fatal("Terminal(nil) must be nil")
	}
	if IsTerminal(errors.New("plain")) {
		t.Fatal("plain error must not be terminal")
	}
}

func TestFixedDelayIsConstant(t *testing.T) {
	p := FixedDelay{Interval: 7 * time.Second}
	for attempt := 1; attempt <= 4; attempt++ {
		if got := p.Delay(attempt); got != 7*time.Second {
			t.Fatalf("Delay(%d)=%v, want 7s", attempt, got)
		}
	}
}

func TestExponentialBackoffDoublesAndCaps(t *testing.T) {
	p := ExponentialBackoff{Base: time.Second, Max: 5 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d)=%v, want %v", tc.attempt, got, tc.want)
		}
	}
}
