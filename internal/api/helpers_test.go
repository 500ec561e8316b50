// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/figures/internal/backfill"
	"github.com/tomtom215/figures/internal/database"
	"github.com/tomtom215/figures/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeStore struct {
	mu        sync.Mutex
	pingErr   error
	listErr   error
	siteDaily []models.SiteDailyMetrics
	errors    []models.PipelineError

	lastFilter      database.MetricsFilter
	lastErrorFilter database.PipelineErrorFilter
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) ListSiteDailyMetrics(_ context.Context, f database.MetricsFilter) ([]models.SiteDailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	return s.siteDaily, s.listErr
}

func (s *fakeStore) ListCourseDailyMetrics(_ context.Context, f database.MetricsFilter) ([]models.CourseDailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	if s.listErr != nil {
		return nil, s.listErr
	}
	return []models.CourseDailyMetrics{{ID: 1, CourseID: f.CourseID, DateFor: day(2020, 3, 2), EnrollmentCount: 4}}, nil
}

func (s *fakeStore) ListMonthlyActiveMetrics(_ context.Context, f database.MetricsFilter) ([]models.MonthlyActiveMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	return nil, s.listErr
}

func (s *fakeStore) ListPipelineErrors(_ context.Context, f database.PipelineErrorFilter) ([]models.PipelineError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErrorFilter = f
	return s.errors, s.listErr
}

type fakeRunner struct {
	err      error
	gotDate  time.Time
	gotForce bool
}

func (r *fakeRunner) RunCourseDailyMetrics(_ context.Context, courseID string, dateFor time.Time, force bool) (*models.CourseDailyMetrics, bool, error) {
	r.gotDate, r.gotForce = dateFor, force
	if r.err != nil {
		return nil, false, r.err
	}
	return &models.CourseDailyMetrics{ID: 9, CourseID: courseID, DateFor: dateFor}, true, nil
}

func (r *fakeRunner) RunSiteDailyMetrics(_ context.Context, siteID int64, dateFor time.Time, force bool) (*models.SiteDailyMetrics, bool, error) {
	r.gotDate, r.gotForce = dateFor, force
	if r.err != nil {
		return nil, false, r.err
	}
	return &models.SiteDailyMetrics{ID: 3, SiteID: siteID, DateFor: dateFor}, false, nil
}

// fakeBackfiller blocks each Backfill call until release is closed.
type fakeBackfiller struct {
	mu      sync.Mutex
	running bool
	release chan struct{}
	err     error
	got     []backfill.Request
}

func newFakeBackfiller() *fakeBackfiller {
	return &fakeBackfiller{release: make(chan struct{})}
}

func (b *fakeBackfiller) Backfill(ctx context.Context, req backfill.Request) (*backfill.Summary, error) {
	b.mu.Lock()
	b.running = true
	b.got = append(b.got, req)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	select {
	case <-b.release:
	case <-ctx.Done():
		return &backfill.Summary{DatesProcessed: 1}, ctx.Err()
	}
	if b.err != nil {
		return &backfill.Summary{SitesFailed: 1}, b.err
	}
	return &backfill.Summary{Sites: 1, DatesProcessed: 4, CoursesProcessed: 6}, nil
}

func (b *fakeBackfiller) Progress() *backfill.Summary {
	return &backfill.Summary{Sites: 1, DatesProcessed: 2}
}

func (b *fakeBackfiller) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

var errBoom = errors.New("boom")

type testEnv struct {
	store      *fakeStore
	runner     *fakeRunner
	backfiller *fakeBackfiller
	router     http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      &fakeStore{},
		runner:     &fakeRunner{},
		backfiller: newFakeBackfiller(),
	}
	h := NewHandler(env.store, env.runner, env.backfiller, WithVersion("test"))
	env.router = NewRouter(h, NewMiddleware(&MiddlewareConfig{RateLimitRequests: 0}))
	t.Cleanup(func() {
		select {
		case <-env.backfiller.release:
		default:
			close(env.backfiller.release)
		}
		h.jobs.Wait()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

// decodeData re-decodes the generic Data member into dst.
func decodeData(t *testing.T, resp APIResponse, dst interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}
