// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron is a parsed standard cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Descriptors such as @daily and @monthly are accepted too.
type Cron struct {
	expr     string
	schedule cron.Schedule
}

// ParseCron parses expr. Examples:
//
//	"30 2 * * *"     every day at 02:30
//	"0 4 1 * *"      the first of every month at 04:00
//	"*/15 * * * 1-5" every 15 minutes on weekdays
func ParseCron(expr string) (*Cron, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &Cron{expr: expr, schedule: schedule}, nil
}

func (c *Cron) String() string { return c.expr }

// Next returns the first activation strictly after t, evaluated in loc. A nil
// loc means UTC. The zero time means the expression never matches, for
// example "0 0 31 2 *".
func (c *Cron) Next(after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return c.schedule.Next(after.In(loc))
}

// NextRun parses expr and returns its next run after t in timezone. An empty
// timezone means UTC.
func NextRun(expr string, after time.Time, timezone string) (time.Time, error) {
	c, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := loadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	return c.Next(after, loc), nil
}

func loadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return loc, nil
}
