// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package reporting

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rollbar/rollbar-go"

	"github.com/tomtom215/figures/internal/config"
	"github.com/tomtom215/figures/internal/models"
)

func TestNewRollbarReporterDisabled(t *testing.T) {
	t.Parallel()

	if r := NewRollbarReporter(config.ReportingConfig{}); r != nil {
		t.Errorf("expected nil reporter without a token, got %+v", r)
	}
	var r *RollbarReporter
	if err := r.Close(); err != nil {
		t.Errorf("Close() on nil reporter = %v", err)
	}
}

func TestReportPipelineError(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		bodies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err":0}`))
	}))
	t.Cleanup(server.Close)

	client := rollbar.NewSync("token", "test", "v0", "host", "")
	client.SetEndpoint(server.URL + "/")
	r := newReporter(client)

	userID, siteID := int64(7), int64(1)
	r.ReportPipelineError(context.Background(), &models.PipelineError{
		ID:        3,
		ErrorType: models.ErrorTypeGrades,
		ErrorData: map[string]any{"msg": "Unable to get course blocks"},
		UserID:    &userID,
		CourseID:  "course-v1:A+1+2020",
		SiteID:    &siteID,
	})

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("expected one item, got %d", len(bodies))
	}
	for _, want := range []string{"Grades data error", `"error_type":"GRADES"`, "Unable to get course blocks", `"level":"warning"`} {
		if !strings.Contains(bodies[0], want) {
			t.Errorf("item missing %s: %s", want, bodies[0])
		}
	}
}
