package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSingleAttemptByDefault(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Single(), func() error {
		attempts++
		return Retryable(errors.New("boom"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestNonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	cfg := Config{MaxAttempts: 5, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
	sentinel := errors.New("terminal")
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryableRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	cfg := Config{MaxAttempts: 4, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestErrorUnmarkedForCaller(t *testing.T) {
	sentinel := errors.New("transient")
	err := Do(context.Background(), Single(), func() error {
		return Retryable(sentinel)
	})
	if err != sentinel {
		t.Errorf("expected unwrapped sentinel, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
	calls := 0
	got, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		if calls == 1 {
			return "", Retryable(errors.New("transient"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
}
