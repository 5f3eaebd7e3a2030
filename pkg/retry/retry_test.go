package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var (
	errTest         = errors.New("test error")
	errNonRetryable = errors.New("non-retryable error")
)

func testConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errTest
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestDo_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		return errTest
	})

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if !errors.Is(err, errTest) {
		t.Errorf("Expected wrapped test error, got: %v", err)
	}
	if attempts != 4 { // initial attempt + 3 retries
		t.Errorf("Expected 4 attempts, got: %d", attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.NonRetryableErrors = []error{errNonRetryable}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return fmt.Errorf("wrapped: %w", errNonRetryable)
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got: %d", attempts)
	}
}

func TestDo_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errTest
	})

	if !errors.Is(err, errTest) {
		t.Errorf("Expected test error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected single attempt when disabled, got: %d", attempts)
	}
}

func TestDoWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DoWithResult(ctx, testConfig(), func() (int, error) {
		return 0, errTest
	})

	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got: %v", err)
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	got, err := DoWithResult(context.Background(), testConfig(), func() (string, error) {
		return "answer", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if got != "answer" {
		t.Errorf("Expected result %q, got %q", "answer", got)
	}
}
