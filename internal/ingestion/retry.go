package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryPolicy defines how failed sub-range fetches are retried.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase float64       // attempt k waits BackoffBase^k units
	BackoffUnit time.Duration // usually one second
	MaxBackoff  time.Duration // zero means uncapped
}

// DefaultRetryPolicy returns the upstream-friendly default: two retries,
// sleeping 2s then 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  2,
		BackoffBase: 2.0,
		BackoffUnit: time.Second,
	}
}

// Backoff returns the delay before the given attempt. Attempt 0 never waits.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := float64(p.BackoffUnit) * math.Pow(p.BackoffBase, float64(attempt))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// ErrorKind classifies upstream fetch failures.
type ErrorKind string

const (
	// ErrorKindAuth means the upstream rejected our credentials; retrying
	// cannot succeed.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindTransient covers timeouts, network and server errors.
	ErrorKindTransient ErrorKind = "transient"
)

// ErrAuthentication is matched by errors.Is for any auth-kind FetchError.
var ErrAuthentication = errors.New("upstream authentication failed")

// FetchError is the structured error returned by activity sources.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrAuthentication) match auth failures.
func (e *FetchError) Is(target error) bool {
	return target == ErrAuthentication && e.Kind == ErrorKindAuth
}

// NewAuthError wraps err as a terminal authentication failure.
func NewAuthError(statusCode int, err error) error {
	return &FetchError{Kind: ErrorKindAuth, StatusCode: statusCode, Err: err}
}

// NewTransientError wraps err as a retryable failure.
func NewTransientError(statusCode int, err error) error {
	return &FetchError{Kind: ErrorKindTransient, StatusCode: statusCode, Err: err}
}

// KindOf returns the error's kind. Errors that are not FetchErrors are
// treated as transient.
func KindOf(err error) ErrorKind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return ErrorKindTransient
}

// IsRetryable checks if an error should trigger another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind != ErrorKindAuth
	}

	// A bare context error means the caller gave up, not the upstream.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
