package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func alwaysRetry(error) bool { return true }

func fastConfig(maxAttempts int, retryable func(error) bool) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		Retryable:    retryable,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(3, alwaysRetry), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("Expected 42, got %d", v)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(3, alwaysRetry), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if v != "ok" {
		t.Errorf("Expected %q, got %q", "ok", v)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttemptCeiling(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3, alwaysRetry), func(ctx context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Errorf("Expected last error unchanged, got %v", err)
	}
	// The ceiling counts the first call: 3 invocations, not 1+3.
	if calls != 3 {
		t.Errorf("Expected exactly 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableAbortsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	_, err := Do(context.Background(), fastConfig(5, func(err error) bool {
		return !errors.Is(err, permanent)
	}), func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_NilPredicateRetriesNothing(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Config{MaxAttempts: 5}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Errorf("Expected error propagated, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call with nil predicate, got %d", calls)
	}
}

func TestDo_ContextCancelAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastConfig(3, alwaysRetry)
	cfg.InitialDelay = time.Minute

	calls := 0
	start := time.Now()
	_, err := Do(ctx, cfg, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected prompt abort, took %v", elapsed)
	}
}

func TestDo_ZeroConfigUsesDefaults(t *testing.T) {
	cfg := Config{Retryable: alwaysRetry}
	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errTransient
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}
