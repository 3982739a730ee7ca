package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:  4,
		BackoffBase: 2.0,
		BackoffUnit: time.Second,
		MaxBackoff:  10 * time.Second,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // Capped at max
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := policy.Backoff(tt.attempt); got != tt.expected {
				t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
			}
		})
	}
}

func TestBackoffUncapped(t *testing.T) {
	policy := RetryPolicy{BackoffBase: 3.0, BackoffUnit: time.Millisecond}

	if got := policy.Backoff(3); got != 27*time.Millisecond {
		t.Errorf("expected 27ms, got %v", got)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	if policy.MaxRetries != 2 {
		t.Errorf("expected MaxRetries=2, got %d", policy.MaxRetries)
	}
	if policy.BackoffBase != 2.0 {
		t.Errorf("expected BackoffBase=2, got %v", policy.BackoffBase)
	}
	if policy.Backoff(1) != 2*time.Second {
		t.Errorf("expected first retry after 2s, got %v", policy.Backoff(1))
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"plain error", errors.New("connection reset"), true},
		{"transient error", NewTransientError(503, errors.New("unavailable")), true},
		{"wrapped transient", fmt.Errorf("outer: %w", NewTransientError(0, errors.New("timeout"))), true},
		{"auth error", NewAuthError(401, errors.New("bad token")), false},
		{"wrapped auth", fmt.Errorf("outer: %w", NewAuthError(403, errors.New("forbidden"))), false},
		{"context cancelled", context.Canceled, false},
		{"transient deadline", NewTransientError(0, context.DeadlineExceeded), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFetchErrorMatchesAuthenticationSentinel(t *testing.T) {
	err := fmt.Errorf("fetching: %w", NewAuthError(401, errors.New("token expired")))
	if !errors.Is(err, ErrAuthentication) {
		t.Fatal("expected auth error to match ErrAuthentication")
	}

	transient := NewTransientError(500, errors.New("boom"))
	if errors.Is(transient, ErrAuthentication) {
		t.Fatal("transient error should not match ErrAuthentication")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != 401 {
		t.Fatalf("expected FetchError with status 401, got %v", fetchErr)
	}
}

func TestFetchErrorMessage(t *testing.T) {
	err := NewTransientError(502, errors.New("bad gateway"))
	if err.Error() != "transient error (status 502): bad gateway" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	err = NewTransientError(0, errors.New("dial tcp: timeout"))
	if err.Error() != "transient error: dial tcp: timeout" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestSleepContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
