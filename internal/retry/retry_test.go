package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dzakiart/derivengine/internal/retry"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call on immediate success, got %d", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}, func(attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls before success, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("always fails")
	err := retry.Do(context.Background(), retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}, func(attempt int) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped wantErr, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly MaxAttempts=3 calls, got %d", calls)
	}
}

type nonRetryable struct{}

func (nonRetryable) Error() string   { return "fatal" }
func (nonRetryable) Retryable() bool { return false }

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(attempt int) error {
		calls++
		return nonRetryable{}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("a non-retryable error should stop after the first attempt, got %d calls", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry.Do(ctx, retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(attempt int) error {
		calls++
		return errors.New("would retry")
	})
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
	if calls != 0 {
		t.Errorf("expected no operation calls against an already-cancelled context, got %d", calls)
	}
}

func TestBuyConfigShape(t *testing.T) {
	cfg := retry.BuyConfig()
	if cfg.MaxAttempts != 5 {
		t.Errorf("BuyConfig MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 5*time.Second || cfg.MaxDelay != 60*time.Second {
		t.Errorf("BuyConfig delays = %v/%v, want 5s/60s", cfg.InitialDelay, cfg.MaxDelay)
	}
}
