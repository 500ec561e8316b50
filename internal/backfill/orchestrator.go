// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package backfill loads historical course and site daily metrics over a date
// range, one site and one date at a time in ascending order.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/pipeline"
)

var (
	// ErrAlreadyRunning is returned when a backfill is started while another
	// one is in progress in this process.
	ErrAlreadyRunning = errors.New("backfill already in progress")

	// ErrStopped is returned when Stop interrupts a run.
	ErrStopped = errors.New("backfill stopped")

	ErrNotRunning = errors.New("no backfill in progress")

	ErrInvalidRange = errors.New("backfill start date is after end date")
)

// Orchestrator runs backfills. It serializes runs within one process only;
// running two processes against the same site at once is the caller's
// responsibility to prevent.
type Orchestrator struct {
	runner      *pipeline.Runner
	checkpoints CheckpointStore
	logDir      string
	logger      zerolog.Logger

	mu       sync.RWMutex
	running  bool
	summary  *Summary
	stopChan chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogDir writes per-date log files under dir.
func WithLogDir(dir string) Option {
	return func(o *Orchestrator) { o.logDir = dir }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an orchestrator. A nil checkpoint store keeps
// checkpoints in memory.
func NewOrchestrator(runner *pipeline.Runner, checkpoints CheckpointStore, opts ...Option) *Orchestrator {
	if checkpoints == nil {
		checkpoints = NewMemoryCheckpoints()
	}
	o := &Orchestrator{
		runner:      runner,
		checkpoints: checkpoints,
		logger:      logging.WithComponent("backfill"),
		stopChan:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Backfill loads course then site daily metrics for every date in the
// request range. Course failures are logged to the error sink and counted. A
// site whose setup or site rollup fails is recorded as a SITE error and the
// run moves on to the next site.
func (o *Orchestrator) Backfill(ctx context.Context, req Request) (*Summary, error) {
	end, err := pipeline.DateForRule(req.End, o.runner.Now())
	if err != nil {
		return nil, err
	}
	if !req.Start.IsZero() {
		if _, err := pipeline.DateForRule(req.Start, o.runner.Now()); err != nil {
			return nil, err
		}
		if pipeline.AsDate(req.Start).After(end) {
			return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
				req.Start.Format(time.DateOnly), end.Format(time.DateOnly))
		}
	}

	sites, err := o.sites(ctx, req.SiteID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.running = true
	o.summary = &Summary{StartTime: time.Now(), Sites: len(sites)}
	stop := o.stopChan
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.summary.EndTime = time.Now()
		o.mu.Unlock()
	}()

	ctx = logging.ContextWithNewRunID(ctx)
	o.logger.Info().
		Int("sites", len(sites)).
		Str("end", end.Format(time.DateOnly)).
		Bool("force", req.Force).
		Bool("resume", req.Resume).
		Msg("starting backfill")

	for i := range sites {
		site := &sites[i]
		if err := o.backfillSite(ctx, stop, site, req, end); err != nil {
			if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return o.Progress(), err
			}
			o.update(func(s *Summary) { s.SitesFailed++ })
			o.runner.Sink().LogError(ctx, map[string]any{
				"msg":   "Unable to backfill site",
				"error": err.Error(),
			}, models.ErrorTypeSite, pipeline.ForSite(site.ID))
		}
	}

	summary := o.Progress()
	o.logger.Info().
		Int("dates_processed", summary.DatesProcessed).
		Int("courses_processed", summary.CoursesProcessed).
		Int("courses_skipped", summary.CoursesSkipped).
		Int("courses_failed", summary.CoursesFailed).
		Int("sdm_processed", summary.SDMProcessed).
		Int("sites_failed", summary.SitesFailed).
		Dur("elapsed", summary.Elapsed()).
		Msg("backfill completed")
	return summary, nil
}

func (o *Orchestrator) sites(ctx context.Context, siteID int64) ([]models.Site, error) {
	if siteID != 0 {
		site, err := o.runner.Site(ctx, siteID)
		if err != nil {
			return nil, err
		}
		return []models.Site{*site}, nil
	}
	sites, err := o.runner.Scope().Sites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

func (o *Orchestrator) backfillSite(ctx context.Context, stop <-chan struct{}, site *models.Site, req Request, end time.Time) error {
	defer pipeline.LogExecTime(o.logger, "backfill site "+strconv.FormatInt(site.ID, 10))()

	courseIDs, err := o.runner.Scope().CourseIDsForSite(ctx, site)
	if err != nil {
		return fmt.Errorf("list site courses: %w", err)
	}
	firsts, err := o.runner.Scope().Reader().FirstEnrollments(ctx, courseIDs)
	if err != nil {
		return fmt.Errorf("read first enrollments: %w", err)
	}

	start := pipeline.AsDate(req.Start)
	if req.Start.IsZero() {
		earliest, ok := earliestDate(firsts)
		if !ok {
			o.logger.Info().Int64("site_id", site.ID).Msg("site has no enrollments, nothing to backfill")
			return o.backfillMonthly(ctx, site, req)
		}
		start = earliest
	}

	var resumeAfter time.Time
	if req.Resume {
		cp, err := o.checkpoints.Load(ctx, site.ID)
		if err != nil {
			return err
		}
		if cp != nil {
			resumeAfter = pipeline.AsDate(cp.LastDate)
			o.logger.Info().Int64("site_id", site.ID).Str("checkpoint", resumeAfter.Format(time.DateOnly)).Msg("resuming backfill")
		}
	}

	for _, dateFor := range pipeline.DaysBetween(start, end) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return ErrStopped
		default:
		}

		if !resumeAfter.IsZero() && !dateFor.After(resumeAfter) {
			o.update(func(s *Summary) { s.DatesSkipped++ })
			continue
		}
		o.update(func(s *Summary) {
			s.CurrentSiteID = site.ID
			s.CurrentDate = dateFor
		})

		if err := o.backfillDate(ctx, site, dateFor, pipeline.CoursesStartedBy(courseIDs, firsts, dateFor), req.Force); err != nil {
			return err
		}

		if err := o.checkpoints.Save(ctx, &Checkpoint{SiteID: site.ID, LastDate: dateFor, UpdatedAt: time.Now().UTC()}); err != nil {
			o.logger.Warn().Err(err).Int64("site_id", site.ID).Msg("failed to save backfill checkpoint")
		}
		o.update(func(s *Summary) { s.DatesProcessed++ })
		metrics.BackfillDatesProcessed.Inc()
		metrics.BackfillLastDate.WithLabelValues(strconv.FormatInt(site.ID, 10)).Set(float64(dateFor.Unix()))
	}

	return o.backfillMonthly(ctx, site, req)
}

// backfillDate loads one date for one site. Only a site rollup failure is
// returned; course failures are counted and logged.
func (o *Orchestrator) backfillDate(ctx context.Context, site *models.Site, dateFor time.Time, courseIDs []string, force bool) error {
	rc, err := o.runner.NewRunContext(site, dateFor, force)
	if err != nil {
		return err
	}

	dl, err := openDateLog(o.logDir, site.ID, dateFor)
	if err != nil {
		return err
	}
	defer func() { _ = dl.Close() }()
	if dl.path != "" {
		o.update(func(s *Summary) { s.addLogFile(dl.path) })
	}

	date := dateFor.Format(time.DateOnly)
	started := time.Now()
	dl.printf("START: backfill %d courses, date_for: %s", len(courseIDs), date)
	for i, courseID := range courseIDs {
		dl.printf("[%d of %d] date_for: %s, %s", i+1, len(courseIDs), date, courseID)
		cdm, created, err := o.runner.LoadCourseDaily(ctx, rc, courseID)
		switch {
		case err != nil:
			dl.printf("-- FAILED: %v", err)
			o.update(func(s *Summary) { s.CoursesFailed++ })
			metrics.RecordBackfillCourse("failed")
			o.runner.Sink().LogError(ctx, map[string]any{
				"msg":      "Unable to backfill course daily metrics",
				"date_for": date,
				"error":    err.Error(),
			}, models.ErrorTypeCourse, pipeline.ForCourse(courseID), pipeline.ForSite(site.ID))
		case !created && !force:
			dl.printf("-- exists CDM id: %d", cdm.ID)
			o.update(func(s *Summary) { s.CoursesSkipped++ })
			metrics.RecordBackfillCourse("skipped")
		default:
			dl.printf("-- wrote CDM id: %d", cdm.ID)
			o.update(func(s *Summary) { s.CoursesProcessed++ })
			metrics.RecordBackfillCourse("processed")
		}
	}
	dl.printf("END: backfill courses. date_for:%s, elapsed: %s", date, time.Since(started).Round(time.Millisecond))

	started = time.Now()
	dl.printf("START: backfill SDM, date_for: %s", date)
	sdm, _, err := o.runner.LoadSiteDaily(ctx, rc)
	if err != nil {
		dl.printf("-- FAILED: %v", err)
		return fmt.Errorf("site daily metrics for %s: %w", date, err)
	}
	dl.printf("-- wrote SDM id: %d", sdm.ID)
	dl.printf("END: backfill SDM. date_for:%s, elapsed: %s", date, time.Since(started).Round(time.Millisecond))
	o.update(func(s *Summary) { s.SDMProcessed++ })
	return nil
}

func (o *Orchestrator) backfillMonthly(ctx context.Context, site *models.Site, req Request) error {
	if req.SkipMonthly {
		return nil
	}
	rows, err := o.runner.BackfillMonthlyMetricsForSite(ctx, site.ID, req.Force)
	if err != nil {
		return fmt.Errorf("monthly backfill: %w", err)
	}
	o.update(func(s *Summary) { s.MonthsProcessed += len(rows) })
	return nil
}

func earliestDate(firsts map[string]time.Time) (time.Time, bool) {
	if len(firsts) == 0 {
		return time.Time{}, false
	}
	dates := make([]time.Time, 0, len(firsts))
	for _, t := range firsts {
		dates = append(dates, pipeline.AsDate(t))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates[0], true
}

func (o *Orchestrator) update(fn func(*Summary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.summary)
}

// Stop interrupts the running backfill before its next date.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return ErrNotRunning
	}
	close(o.stopChan)
	o.stopChan = make(chan struct{})
	return nil
}

// Progress returns a copy of the current or last run's summary.
func (o *Orchestrator) Progress() *Summary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.summary == nil {
		return &Summary{}
	}
	return o.summary.clone()
}

func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// ClearCheckpoint forgets the saved progress of a site.
func (o *Orchestrator) ClearCheckpoint(ctx context.Context, siteID int64) error {
	return o.checkpoints.Clear(ctx, siteID)
}
