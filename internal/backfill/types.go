// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package backfill

import (
	"time"
)

// Request describes one backfill run.
type Request struct {
	// SiteID selects one site. Zero means every site.
	SiteID int64 `json:"site_id"`

	// Start is the first date to load. Zero means the earliest first
	// enrollment among the site's courses.
	Start time.Time `json:"start"`

	// End is the last date to load. Zero or today means yesterday.
	End time.Time `json:"end"`

	// Force recomputes rows that already exist.
	Force bool `json:"force"`

	// Resume skips dates at or before each site's saved checkpoint.
	Resume bool `json:"resume"`

	// SkipMonthly leaves out the monthly active user backfill that otherwise
	// follows the daily pass.
	SkipMonthly bool `json:"skip_monthly"`
}

// Summary holds the counters of a backfill run.
type Summary struct {
	Sites            int      `json:"sites"`
	SitesFailed      int      `json:"sites_failed"`
	DatesProcessed   int      `json:"dates_processed"`
	DatesSkipped     int      `json:"dates_skipped"`
	CoursesProcessed int      `json:"courses_processed"`
	CoursesSkipped   int      `json:"courses_skipped"`
	CoursesFailed    int      `json:"courses_failed"`
	SDMProcessed     int      `json:"sdm_processed"`
	MonthsProcessed  int      `json:"months_processed"`
	LogFiles         []string `json:"logfiles,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`

	// CurrentSiteID and CurrentDate track the position of a running backfill.
	CurrentSiteID int64     `json:"current_site_id,omitempty"`
	CurrentDate   time.Time `json:"current_date,omitempty"`
}

// Elapsed returns the run duration, or the time since start while running.
func (s *Summary) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

func (s *Summary) addLogFile(path string) {
	for _, p := range s.LogFiles {
		if p == path {
			return
		}
	}
	s.LogFiles = append(s.LogFiles, path)
}

// clone copies s including the log file slice.
func (s *Summary) clone() *Summary {
	c := *s
	c.LogFiles = append([]string(nil), s.LogFiles...)
	return &c
}
