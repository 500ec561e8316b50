// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package gradeclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/figures/internal/config"
)

const sectionsJSON = `{"user_id": 7, "course_id": "course-v1:A+1+2020", "sections": [
	{"label": "HW 01", "earned": 1, "possible": 2},
	{"label": "Exam", "earned": 0, "possible": 0}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(&config.GradesConfig{URL: server.URL + "/", APIKey: "secret", MaxRetries: 2})
	c.retryBaseDelay = time.Millisecond
	return c
}

func TestLearnerGradeStructure(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sectionsJSON))
	})

	sections, err := c.LearnerGradeStructure(context.Background(), 7, "course-v1:A+1+2020")
	if err != nil {
		t.Fatalf("LearnerGradeStructure() error = %v", err)
	}
	if len(sections) != 2 || sections[0].Label != "HW 01" || !sections[0].IsGraded() || sections[1].IsGraded() {
		t.Errorf("sections = %+v", sections)
	}
	if gotPath != "/api/grades/v1/users/7/courses/course-v1:A+1+2020/sections" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestLearnerGradeStructureStatusError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such learner", http.StatusNotFound)
	})

	_, err := c.LearnerGradeStructure(context.Background(), 1, "c")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestLearnerGradeStructureDecodeError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})

	if _, err := c.LearnerGradeStructure(context.Background(), 1, "c"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRateLimitRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(sectionsJSON))
	})

	sections, err := c.LearnerGradeStructure(context.Background(), 7, "c")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(sections) != 2 || calls.Load() != 3 {
		t.Errorf("sections=%d calls=%d", len(sections), calls.Load())
	}
}

func TestRateLimitExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := c.LearnerGradeStructure(context.Background(), 7, "c"); err == nil {
		t.Fatal("expected rate limit error")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestContextCanceled(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sectionsJSON))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.LearnerGradeStructure(ctx, 7, "c"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	settings := defaultSettings()
	settings.Name = "grades-api-test-open"
	cbc := wrapClient(c, settings)

	for i := 0; i < 10; i++ {
		_, _ = cbc.LearnerGradeStructure(context.Background(), 1, "c")
	}
	if cbc.State() != "open" {
		t.Fatalf("expected open breaker, got %s", cbc.State())
	}

	before := calls.Load()
	_, err := cbc.LearnerGradeStructure(context.Background(), 1, "c")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open breaker must not reach the server")
	}
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	settings := defaultSettings()
	settings.Name = "grades-api-test-404"
	cbc := wrapClient(c, settings)

	for i := 0; i < 12; i++ {
		_, _ = cbc.LearnerGradeStructure(context.Background(), 1, "c")
	}
	if cbc.State() != "closed" {
		t.Errorf("expected closed breaker for 4xx responses, got %s", cbc.State())
	}
}
