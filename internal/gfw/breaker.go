package gfw

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mpawatch/mpawatch/internal/ingestion"
	"github.com/mpawatch/mpawatch/internal/models"
)

const (
	breakerTripAfter = 5
	breakerOpenFor   = 30 * time.Second
)

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker[[]models.ActivityRecord] {
	return gobreaker.NewCircuitBreaker[[]models.ActivityRecord](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		IsSuccessful: isHealthyOutcome,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// isHealthyOutcome reports whether err says nothing about upstream health:
// a rejected token, or the caller cancelling or running out of time. Client
// timeouts arrive wrapped in a FetchError and still count as failures.
func isHealthyOutcome(err error) bool {
	if err == nil || errors.Is(err, ingestion.ErrAuthentication) {
		return true
	}
	var fetchErr *ingestion.FetchError
	if errors.As(err, &fetchErr) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
