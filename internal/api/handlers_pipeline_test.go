// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/tomtom215/figures/internal/pipeline"
	"github.com/tomtom215/figures/internal/platform"
)

func TestRunCourse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec, resp := env.do(t, http.MethodPost, "/api/v1/pipeline/course",
		RunCourseRequest{CourseID: "course-v1:A+B+C", DateFor: "2020-03-02", Force: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !env.runner.gotDate.Equal(day(2020, 3, 2)) || !env.runner.gotForce {
		t.Errorf("runner got date %v force %v", env.runner.gotDate, env.runner.gotForce)
	}
	var result struct {
		Created bool `json:"created"`
		Metrics struct {
			CourseID string `json:"course_id"`
		} `json:"metrics"`
	}
	decodeData(t, resp, &result)
	if !result.Created || result.Metrics.CourseID != "course-v1:A+B+C" {
		t.Errorf("result = %+v", result)
	}
}

func TestRunSiteDefaultsToZeroDate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodPost, "/api/v1/pipeline/site", RunSiteRequest{SiteID: 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !env.runner.gotDate.IsZero() {
		t.Errorf("an omitted date_for must reach the runner as zero (yesterday), got %v", env.runner.gotDate)
	}
}

func TestRunEndpointsRejectBadBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		body     interface{}
		wantCode string
	}{
		{name: "malformed json", target: "/api/v1/pipeline/course", body: `{"course_id":`, wantCode: ErrCodeBadRequest},
		{name: "unknown field", target: "/api/v1/pipeline/course", body: `{"course_id":"c","extra":1}`, wantCode: ErrCodeBadRequest},
		{name: "missing course", target: "/api/v1/pipeline/course", body: RunCourseRequest{}, wantCode: ErrCodeValidationFailed},
		{name: "bad date", target: "/api/v1/pipeline/site", body: RunSiteRequest{SiteID: 1, DateFor: "2020/03/02"}, wantCode: ErrCodeValidationFailed},
		{name: "missing site", target: "/api/v1/pipeline/site", body: RunSiteRequest{}, wantCode: ErrCodeValidationFailed},
		{name: "negative backfill site", target: "/api/v1/backfill", body: BackfillRequest{SiteID: -1}, wantCode: ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			rec, resp := env.do(t, http.MethodPost, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestRunErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "future date", err: &pipeline.DateForCannotBeFutureError{DateFor: day(2999, 1, 1)}, wantStatus: http.StatusBadRequest, wantCode: ErrCodeBadRequest},
		{name: "unlinked course", err: &pipeline.UnlinkedCourseError{CourseID: "c"}, wantStatus: http.StatusNotFound, wantCode: ErrCodeNotFound},
		{name: "unknown site", err: fmt.Errorf("lookup: %w", platform.ErrSiteNotFound), wantStatus: http.StatusNotFound, wantCode: ErrCodeNotFound},
		{name: "other failure", err: errBoom, wantStatus: http.StatusInternalServerError, wantCode: ErrCodePipelineError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			env.runner.err = tt.err
			rec, resp := env.do(t, http.MethodPost, "/api/v1/pipeline/course", RunCourseRequest{CourseID: "c"})
			if rec.Code != tt.wantStatus || resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("status = %d, error = %+v", rec.Code, resp.Error)
			}
		})
	}
}

func TestBackfillLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec, resp := env.do(t, http.MethodPost, "/api/v1/backfill",
		BackfillRequest{SiteID: 1, Start: "2020-03-01", End: "2020-03-04", SkipMonthly: true})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var job BackfillJob
	decodeData(t, resp, &job)
	if job.ID == "" || job.Status != JobRunning {
		t.Fatalf("job = %+v", job)
	}

	waitFor(t, env.backfiller.IsRunning)

	rec, resp = env.do(t, http.MethodPost, "/api/v1/backfill", BackfillRequest{})
	if rec.Code != http.StatusConflict || resp.Error.Code != ErrCodeConflict {
		t.Errorf("second backfill status = %d, want 409", rec.Code)
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/backfill/"+job.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var running BackfillJob
	decodeData(t, resp, &running)
	if running.Status != JobRunning || running.Summary == nil || running.Summary.DatesProcessed != 2 {
		t.Errorf("running job = %+v", running)
	}

	close(env.backfiller.release)
	waitFor(t, func() bool {
		_, resp := env.do(t, http.MethodGet, "/api/v1/backfill/"+job.ID, nil)
		var j BackfillJob
		decodeData(t, resp, &j)
		return j.Status == JobCompleted
	})

	_, resp = env.do(t, http.MethodGet, "/api/v1/backfill/"+job.ID, nil)
	var done BackfillJob
	decodeData(t, resp, &done)
	if done.Summary.CoursesProcessed != 6 || done.Finished == nil {
		t.Errorf("finished job = %+v", done)
	}

	got := env.backfiller.got[0]
	if got.SiteID != 1 || !got.Start.Equal(day(2020, 3, 1)) || !got.End.Equal(day(2020, 3, 4)) || !got.SkipMonthly {
		t.Errorf("orchestrator got %+v", got)
	}
}

func TestBackfillRejectsBadRange(t *testing.T) {
	t.Parallel()

	future := time.Now().AddDate(0, 0, 5).Format(time.DateOnly)
	tests := []struct {
		name string
		body BackfillRequest
	}{
		{name: "start after end", body: BackfillRequest{Start: "2020-03-05", End: "2020-03-01"}},
		{name: "future end", body: BackfillRequest{End: future}},
		{name: "future start", body: BackfillRequest{Start: future}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			rec, _ := env.do(t, http.MethodPost, "/api/v1/backfill", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(env.backfiller.got) != 0 {
				t.Error("no job should start")
			}
		})
	}
}

func TestBackfillUnknownJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodGet, "/api/v1/backfill/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestBackfillUnavailable(t *testing.T) {
	t.Parallel()

	router := NewRouter(NewHandler(&fakeStore{}, &fakeRunner{}, nil), nil)
	env := &testEnv{router: router}
	rec, _ := env.do(t, http.MethodPost, "/api/v1/backfill", BackfillRequest{})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
