// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/figures/internal/backfill"
)

func TestBackfillJobsOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		cancel     bool
		wantStatus JobStatus
	}{
		{name: "completed", wantStatus: JobCompleted},
		{name: "failed", err: errBoom, wantStatus: JobFailed},
		{name: "stopped", err: backfill.ErrStopped, wantStatus: JobCanceled},
		{name: "canceled by shutdown", cancel: true, wantStatus: JobCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newFakeBackfiller()
			b.err = tt.err
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			jobs := NewBackfillJobs(ctx, b)

			job, err := jobs.Submit(backfill.Request{SiteID: 1})
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if tt.cancel {
				cancel()
			} else {
				close(b.release)
			}
			jobs.Wait()

			got, ok := jobs.Get(job.ID)
			if !ok {
				t.Fatal("job disappeared")
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if (tt.wantStatus == JobCompleted) != (got.Error == "") {
				t.Errorf("error = %q", got.Error)
			}
		})
	}
}

func TestBackfillJobsSingleRun(t *testing.T) {
	t.Parallel()

	b := newFakeBackfiller()
	jobs := NewBackfillJobs(context.Background(), b)

	if _, err := jobs.Submit(backfill.Request{}); err != nil {
		t.Fatal(err)
	}
	// The orchestrator may not have flagged itself running yet; the registry
	// must still refuse.
	if _, err := jobs.Submit(backfill.Request{}); !errors.Is(err, backfill.ErrAlreadyRunning) {
		t.Errorf("second Submit() error = %v, want ErrAlreadyRunning", err)
	}
	close(b.release)
	jobs.Wait()

	if _, err := jobs.Submit(backfill.Request{}); err != nil {
		t.Errorf("Submit() after completion error = %v", err)
	}
	jobs.Wait()
}

func TestBackfillJobsEviction(t *testing.T) {
	t.Parallel()

	b := newFakeBackfiller()
	close(b.release)
	jobs := NewBackfillJobs(context.Background(), b)

	var first string
	for i := 0; i < maxRetainedJobs+5; i++ {
		job, err := jobs.Submit(backfill.Request{})
		if err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
		if i == 0 {
			first = job.ID
		}
		jobs.Wait()
	}

	if _, ok := jobs.Get(first); ok {
		t.Error("oldest finished job should be evicted")
	}
	jobs.mu.RLock()
	defer jobs.mu.RUnlock()
	if len(jobs.jobs) != maxRetainedJobs || len(jobs.order) != maxRetainedJobs {
		t.Errorf("retained %d/%d jobs, want %d", len(jobs.jobs), len(jobs.order), maxRetainedJobs)
	}
}
