// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package pipelinetest provides an in-memory metrics store for tests.
package pipelinetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/figures/internal/database"
	"github.com/tomtom215/figures/internal/models"
)

func dayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Store keeps metrics rows in maps keyed like the database unique indexes.
// Writes counts every upsert and error insert.
type Store struct {
	mu sync.Mutex

	nextID int64
	Writes int

	CourseDaily  map[string]models.CourseDailyMetrics // course|date
	SiteDaily    map[string]models.SiteDailyMetrics   // site|date
	LearnerGrade map[string]models.LearnerCourseGradeMetrics
	Monthly      map[string]models.MonthlyActiveMetrics
	Errors       []models.PipelineError

	// FailCourseDaily makes UpsertCourseDailyMetrics fail for these course ids.
	FailCourseDaily map[string]error

	// FailSiteDaily makes UpsertSiteDailyMetrics fail for these site ids.
	FailSiteDaily map[int64]error
}

func NewStore() *Store {
	return &Store{
		CourseDaily:     map[string]models.CourseDailyMetrics{},
		SiteDaily:       map[string]models.SiteDailyMetrics{},
		LearnerGrade:    map[string]models.LearnerCourseGradeMetrics{},
		Monthly:         map[string]models.MonthlyActiveMetrics{},
		FailCourseDaily: map[string]error{},
		FailSiteDaily:   map[int64]error{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// PutCourseDaily inserts a row directly, bypassing Writes.
func (s *Store) PutCourseDaily(m models.CourseDailyMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.id()
	}
	s.CourseDaily[m.CourseID+"|"+dayKey(m.DateFor)] = m
}

func (s *Store) GetCourseDailyMetrics(_ context.Context, courseID string, dateFor time.Time) (*models.CourseDailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.CourseDaily[courseID+"|"+dayKey(dateFor)]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpsertCourseDailyMetrics(_ context.Context, m *models.CourseDailyMetrics) (*models.CourseDailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailCourseDaily[m.CourseID]; err != nil {
		return nil, err
	}
	s.Writes++
	key := m.CourseID + "|" + dayKey(m.DateFor)
	row := *m
	now := time.Now().UTC()
	if cur, ok := s.CourseDaily[key]; ok {
		row.ID, row.Created = cur.ID, cur.Created
	} else {
		row.ID, row.Created = s.id(), now
	}
	row.Modified = now
	s.CourseDaily[key] = row
	return &row, nil
}

func (s *Store) CourseDailyMetricsForSiteDate(_ context.Context, siteID int64, dateFor time.Time) ([]models.CourseDailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CourseDailyMetrics
	for _, m := range s.CourseDaily {
		if m.SiteID == siteID && dayKey(m.DateFor) == dayKey(dateFor) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *Store) GetSiteDailyMetrics(_ context.Context, siteID int64, dateFor time.Time) (*models.SiteDailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.SiteDaily[fmt.Sprintf("%d|%s", siteID, dayKey(dateFor))]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpsertSiteDailyMetrics(_ context.Context, m *models.SiteDailyMetrics) (*models.SiteDailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSiteDaily[m.SiteID]; err != nil {
		return nil, err
	}
	s.Writes++
	key := fmt.Sprintf("%d|%s", m.SiteID, dayKey(m.DateFor))
	row := *m
	now := time.Now().UTC()
	if cur, ok := s.SiteDaily[key]; ok {
		row.ID, row.Created = cur.ID, cur.Created
	} else {
		row.ID, row.Created = s.id(), now
	}
	row.Modified = now
	s.SiteDaily[key] = row
	return &row, nil
}

func (s *Store) LatestSiteDailyMetricsBefore(_ context.Context, siteID int64, dateFor time.Time) (*models.SiteDailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.SiteDailyMetrics
	for _, m := range s.SiteDaily {
		if m.SiteID != siteID || !m.DateFor.Before(dateFor) {
			continue
		}
		if best == nil || m.DateFor.After(best.DateFor) {
			row := m
			best = &row
		}
	}
	if best == nil {
		return nil, database.ErrNotFound
	}
	return best, nil
}

func learnerKey(userID int64, courseID string, dateFor time.Time) string {
	return fmt.Sprintf("%d|%s|%s", userID, courseID, dayKey(dateFor))
}

func (s *Store) LatestLearnerCourseGradeMetrics(_ context.Context, userID int64, courseID string) (*models.LearnerCourseGradeMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.LearnerCourseGradeMetrics
	for _, m := range s.LearnerGrade {
		if m.UserID != userID || m.CourseID != courseID {
			continue
		}
		if best == nil || m.DateFor.After(best.DateFor) {
			row := m
			best = &row
		}
	}
	if best == nil {
		return nil, database.ErrNotFound
	}
	return best, nil
}

// PutLearnerGrade inserts a snapshot directly, bypassing Writes.
func (s *Store) PutLearnerGrade(m models.LearnerCourseGradeMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.id()
	}
	s.LearnerGrade[learnerKey(m.UserID, m.CourseID, m.DateFor)] = m
}

func (s *Store) UpsertLearnerCourseGradeMetrics(_ context.Context, m *models.LearnerCourseGradeMetrics) (*models.LearnerCourseGradeMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes++
	key := learnerKey(m.UserID, m.CourseID, m.DateFor)
	row := *m
	if cur, ok := s.LearnerGrade[key]; ok {
		row.ID = cur.ID
	} else {
		row.ID = s.id()
	}
	s.LearnerGrade[key] = row
	return &row, nil
}

func monthlyKey(siteID int64, courseID string, year, month int) string {
	return fmt.Sprintf("%d|%s|%04d-%02d", siteID, courseID, year, month)
}

func (s *Store) GetMonthlyActiveMetrics(_ context.Context, siteID int64, courseID string, year, month int) (*models.MonthlyActiveMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Monthly[monthlyKey(siteID, courseID, year, month)]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpsertMonthlyActiveMetrics(_ context.Context, m *models.MonthlyActiveMetrics) (*models.MonthlyActiveMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes++
	key := monthlyKey(m.SiteID, m.CourseID, m.Year, m.Month)
	row := *m
	if cur, ok := s.Monthly[key]; ok {
		row.ID = cur.ID
	} else {
		row.ID = s.id()
	}
	s.Monthly[key] = row
	return &row, nil
}

func (s *Store) InsertPipelineError(_ context.Context, e *models.PipelineError) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *e
	row.ID = s.id()
	s.Errors = append(s.Errors, row)
	return row.ID, nil
}

// ErrorsOfType returns the stored errors with type t.
func (s *Store) ErrorsOfType(t models.ErrorType) []models.PipelineError {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PipelineError
	for _, e := range s.Errors {
		if e.ErrorType == t {
			out = append(out, e)
		}
	}
	return out
}

// WriteCount returns Writes under the lock.
func (s *Store) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Writes
}
