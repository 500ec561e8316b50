// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package scheduler runs the recurring metrics jobs on cron schedules.
//
// The scheduler wakes up every CheckInterval, runs the jobs whose next run
// time has passed one after another, and computes their next run time. Jobs
// are not retried unless Job.Retries is set; a retry waits RetryDelay doubled
// on each attempt.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/metrics"
)

// ErrUnknownJob is returned by RunJob for a name that is not registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is one recurring task.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
	Retries  int
}

// Config holds scheduler settings.
type Config struct {
	Enabled bool

	// CheckInterval is how often due jobs are looked for (default: 1 minute).
	CheckInterval time.Duration

	// Timezone the cron expressions are evaluated in. Empty means UTC.
	Timezone string

	// RetryDelay is the wait before the first retry (default: 30 seconds).
	RetryDelay time.Duration

	// ExecutionTimeout bounds one attempt. Zero means no limit.
	ExecutionTimeout time.Duration
}

// JobStatus describes a registered job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
}

type scheduledJob struct {
	Job
	cron    *Cron
	next    time.Time
	lastRun time.Time
	lastErr error
	runs    int
}

// Scheduler runs jobs on their cron schedules.
type Scheduler struct {
	jobs   []*scheduledJob
	loc    *time.Location
	config Config
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// New validates every job's schedule and returns a stopped scheduler.
func New(config Config, jobs []Job, opts ...Option) (*Scheduler, error) {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 30 * time.Second
	}
	loc, err := loadLocation(config.Timezone)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		loc:    loc,
		config: config,
		logger: logging.WithComponent("scheduler"),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}

	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if j.Name == "" || j.Run == nil {
			return nil, fmt.Errorf("job %q needs a name and a run function", j.Name)
		}
		if seen[j.Name] {
			return nil, fmt.Errorf("duplicate job %q", j.Name)
		}
		seen[j.Name] = true
		c, err := ParseCron(j.Schedule)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.Name, err)
		}
		if j.Retries < 0 {
			j.Retries = 0
		}
		s.jobs = append(s.jobs, &scheduledJob{Job: j, cron: c, next: c.Next(s.now(), loc)})
	}
	return s, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		go func() {
			defer close(s.doneCh)
			<-s.stopCh
		}()
		return nil
	}

	for _, j := range s.jobs {
		s.logger.Info().
			Str("job", j.Name).
			Str("schedule", j.Schedule).
			Time("next_run", j.next).
			Msg("Scheduled job")
	}
	go s.run(ctx)
	return nil
}

// Stop stops the loop and waits for a running job to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runDue runs every job whose next run time is not after now.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.runMu.Lock()
		due := !j.next.IsZero() && !now.Before(j.next)
		s.runMu.Unlock()
		if !due {
			continue
		}
		_ = s.execute(ctx, j)
		// Slots that passed while the job ran are skipped.
		s.runMu.Lock()
		j.next = j.cron.Next(s.now(), s.loc)
		s.runMu.Unlock()
	}
}

// RunJob runs the named job immediately, with its retries, and leaves its
// schedule unchanged.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name == name {
			return s.execute(ctx, j)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) execute(ctx context.Context, j *scheduledJob) error {
	ctx = logging.ContextWithNewRunID(ctx)
	logger := s.logger.With().Str("job", j.Name).Str("run_id", logging.RunIDFromContext(ctx)).Logger()

	var err error
	for attempt := 0; attempt <= j.Retries; attempt++ {
		if attempt > 0 {
			delay := s.config.RetryDelay << (attempt - 1)
			logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying job")
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				break
			}
		}
		start := time.Now()
		err = s.attempt(ctx, j)
		metrics.RecordSchedulerRun(j.Name, err)
		if err == nil {
			logger.Info().Dur("duration", time.Since(start)).Msg("Job completed")
			break
		}
		logger.Error().Err(err).Int("attempt", attempt).Msg("Job failed")
	}

	s.runMu.Lock()
	j.lastRun = s.now()
	j.lastErr = err
	j.runs++
	s.runMu.Unlock()
	return err
}

func (s *Scheduler) attempt(ctx context.Context, j *scheduledJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
	}()
	if s.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ExecutionTimeout)
		defer cancel()
	}
	return j.Run(ctx)
}

// Status reports every job.
func (s *Scheduler) Status() []JobStatus {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{
			Name:     j.Name,
			Schedule: j.Schedule,
			NextRun:  j.next,
			LastRun:  j.lastRun,
			Runs:     j.runs,
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
