// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/figures/internal/backfill"
	"github.com/tomtom215/figures/internal/logging"
)

// JobStatus is the lifecycle state of an API-started backfill.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// BackfillJob is what GET /api/v1/backfill/{jobID} returns.
type BackfillJob struct {
	ID       string            `json:"id"`
	Status   JobStatus         `json:"status"`
	Request  backfill.Request  `json:"request"`
	Summary  *backfill.Summary `json:"summary,omitempty"`
	Error    string            `json:"error,omitempty"`
	Created  time.Time         `json:"created"`
	Finished *time.Time        `json:"finished,omitempty"`
}

// maxRetainedJobs bounds the registry; the oldest finished jobs go first.
const maxRetainedJobs = 50

// BackfillJobs runs backfills in the background and remembers their outcome.
// The orchestrator allows one run at a time, so at most one job is running.
type BackfillJobs struct {
	ctx        context.Context
	backfiller Backfiller

	mu    sync.RWMutex
	jobs  map[string]*BackfillJob
	order []string
	wg    sync.WaitGroup
}

// NewBackfillJobs creates a registry whose jobs run under ctx, so canceling
// ctx stops them.
func NewBackfillJobs(ctx context.Context, backfiller Backfiller) *BackfillJobs {
	return &BackfillJobs{
		ctx:        ctx,
		backfiller: backfiller,
		jobs:       make(map[string]*BackfillJob),
	}
}

// Submit starts req in the background and returns the new job.
func (j *BackfillJobs) Submit(req backfill.Request) (*BackfillJob, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.backfiller.IsRunning() || j.runningLocked() {
		return nil, backfill.ErrAlreadyRunning
	}

	job := &BackfillJob{
		ID:      uuid.New().String(),
		Status:  JobRunning,
		Request: req,
		Created: time.Now().UTC(),
	}
	j.jobs[job.ID] = job
	j.order = append(j.order, job.ID)
	j.evictLocked()

	j.wg.Add(1)
	go j.run(job.ID, req)

	c := *job
	return &c, nil
}

func (j *BackfillJobs) run(id string, req backfill.Request) {
	defer j.wg.Done()

	ctx := logging.ContextWithRunID(j.ctx, id[:8])
	summary, err := j.backfiller.Backfill(ctx, req)

	j.mu.Lock()
	defer j.mu.Unlock()
	job := j.jobs[id]
	if job == nil {
		return
	}
	now := time.Now().UTC()
	job.Finished = &now
	job.Summary = summary
	switch {
	case err == nil:
		job.Status = JobCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, backfill.ErrStopped):
		job.Status = JobCanceled
		job.Error = err.Error()
	default:
		job.Status = JobFailed
		job.Error = err.Error()
	}
	logging.Ctx(ctx).Info().Str("job_id", id).Str("status", string(job.Status)).Msg("backfill job finished")
}

// Get returns a copy of the job. A running job carries live progress.
func (j *BackfillJobs) Get(id string) (*BackfillJob, bool) {
	j.mu.RLock()
	job, ok := j.jobs[id]
	if !ok {
		j.mu.RUnlock()
		return nil, false
	}
	c := *job
	j.mu.RUnlock()

	if c.Status == JobRunning {
		c.Summary = j.backfiller.Progress()
	}
	return &c, true
}

// Wait blocks until every submitted job has finished.
func (j *BackfillJobs) Wait() {
	j.wg.Wait()
}

func (j *BackfillJobs) runningLocked() bool {
	for _, job := range j.jobs {
		if job.Status == JobRunning {
			return true
		}
	}
	return false
}

func (j *BackfillJobs) evictLocked() {
	for len(j.order) > maxRetainedJobs {
		evicted := false
		for i, id := range j.order {
			if j.jobs[id].Status != JobRunning {
				delete(j.jobs, id)
				j.order = append(j.order[:i], j.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}
