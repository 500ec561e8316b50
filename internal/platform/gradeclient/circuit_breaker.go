// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package gradeclient

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/figures/internal/config"
	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform"
)

const breakerName = "grades-api"

var _ platform.GradeSource = (*CircuitBreakerClient)(nil)

// CircuitBreakerClient wraps Client with a circuit breaker so a failing grades
// service does not stall a whole pipeline run.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[[]models.GradedSection]
}

// NewCircuitBreakerClient creates a grades client with circuit breaker:
// at most 3 requests in half-open state, a 1 minute measurement window,
// 2 minutes open before probing, opening at a 60% failure rate over at least 10 requests.
func NewCircuitBreakerClient(cfg *config.GradesConfig) *CircuitBreakerClient {
	return wrapClient(NewClient(cfg), defaultSettings())
}

func defaultSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},
		// 4xx responses do not count against the service.
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
				return true
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

func wrapClient(client *Client, settings gobreaker.Settings) *CircuitBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(settings.Name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(settings.Name).Set(0)

	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		fromStr := stateToString(from)
		toStr := stateToString(to)

		logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

		metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		if to == gobreaker.StateClosed {
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
		}
	}

	return &CircuitBreakerClient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker[[]models.GradedSection](settings),
	}
}

// LearnerGradeStructure fetches grades with circuit breaker protection.
func (cbc *CircuitBreakerClient) LearnerGradeStructure(ctx context.Context, userID int64, courseID string) ([]models.GradedSection, error) {
	name := cbc.cb.Name()
	sections, err := cbc.cb.Execute(func() ([]models.GradedSection, error) {
		return cbc.client.LearnerGradeStructure(ctx, userID, courseID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
			counts := cbc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(counts.ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	return sections, nil
}

// State reports the breaker state as "closed", "half-open" or "open".
func (cbc *CircuitBreakerClient) State() string {
	return stateToString(cbc.cb.State())
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
