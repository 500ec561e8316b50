// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

/*
Package gradeclient reads learner grade structures from the platform's grades
service over HTTP.

Resilience:
  - Rate limiting: a token bucket caps outgoing requests per second
  - HTTP 429: exponential backoff (1s, 2s, 4s, ...) honoring Retry-After
  - Circuit breaker: opens when 60% of at least 10 requests fail in a minute
  - Context: every request is cancellable
*/
package gradeclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/figures/internal/config"
	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
)

// maxErrorBodySize limits the amount of response body read for error reporting
const maxErrorBodySize = 64 * 1024

// readBodyForError reads at most 64KB of the response body for error messages
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// sectionsResponse is the grades service payload.
type sectionsResponse struct {
	UserID   int64                  `json:"user_id"`
	CourseID string                 `json:"course_id"`
	Sections []models.GradedSection `json:"sections"`
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("grades service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client calls the grades service without circuit breaking.
type Client struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient builds a client from cfg.
func NewClient(cfg *config.GradesConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		apiKey:         cfg.APIKey,
		client:         &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(limit, burst),
		maxRetries:     maxRetries,
		retryBaseDelay: time.Second,
	}
}

// LearnerGradeStructure fetches the graded sections of a learner in a course.
func (c *Client) LearnerGradeStructure(ctx context.Context, userID int64, courseID string) ([]models.GradedSection, error) {
	reqURL := fmt.Sprintf("%s/api/grades/v1/users/%d/courses/%s/sections",
		c.baseURL, userID, url.PathEscape(courseID))

	start := time.Now()
	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		metrics.RecordGradesRequest(time.Since(start), "transport")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordGradesRequest(time.Since(start), "status")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(readBodyForError(resp.Body))}
	}

	var payload sectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.RecordGradesRequest(time.Since(start), "decode")
		return nil, fmt.Errorf("failed to decode grades response: %w", err)
	}
	metrics.RecordGradesRequest(time.Since(start), "")
	return payload.Sections, nil
}

// doRequestWithRateLimit waits for the limiter, then performs the request,
// retrying HTTP 429 with exponential backoff.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()
		metrics.RecordGradesRequest(0, "rate_limited")

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
				delay = time.Duration(seconds) * time.Second
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}
