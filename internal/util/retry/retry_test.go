package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSuccess(t *testing.T) {
	t.Parallel()
	attempts := 0
	operation := func() error {
		attempts++
		return nil
	}

	err := Do(context.Background(), operation)

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDoSuccessAfterRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	operation := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	err := Do(context.Background(), operation,
		WithAttempts(3),
		WithInitialDelay(10*time.Millisecond))

	if err != nil {
		t.Errorf("Expected no error after retries, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0
	operation := func() error {
		attempts++
		return errors.New("persistent error")
	}

	err := Do(context.Background(), operation,
		WithAttempts(3),
		WithInitialDelay(10*time.Millisecond))

	if err == nil {
		t.Error("Expected error after exhausting attempts, got nil")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestDoFatalNotRetried(t *testing.T) {
	t.Parallel()
	attempts := 0
	cause := errors.New("invalid input")
	operation := func() error {
		attempts++
		return Fatal(cause)
	}

	err := Do(context.Background(), operation,
		WithAttempts(5),
		WithInitialDelay(10*time.Millisecond))

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for fatal error, got: %d", attempts)
	}
}

func TestDoContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	operation := func() error {
		attempts++
		cancel()
		return errors.New("temporary error")
	}

	err := Do(ctx, operation, WithAttempts(5), WithInitialDelay(time.Hour))

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDoBackoffCappedAtMaxDelay(t *testing.T) {
	t.Parallel()
	attempts := 0
	start := time.Now()
	operation := func() error {
		attempts++
		return errors.New("temporary error")
	}

	_ = Do(context.Background(), operation,
		WithAttempts(4),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2*time.Millisecond),
		WithMultiplier(100))

	if attempts != 4 {
		t.Errorf("Expected 4 attempts, got: %d", attempts)
	}
	// 1ms + 2ms + 2ms of delays; generous upper bound to avoid flakes
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Backoff not capped, took %v", elapsed)
	}
}

func TestFatalNil(t *testing.T) {
	t.Parallel()
	if Fatal(nil) != nil {
		t.Error("Fatal(nil) should be nil")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("plain error should not be fatal")
	}
}
