// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import (
	"fmt"
	"time"
)

// DateForCannotBeFutureError is returned when a run is requested for a day
// that has not happened yet.
type DateForCannotBeFutureError struct {
	DateFor time.Time
	Today   time.Time
}

func (e *DateForCannotBeFutureError) Error() string {
	return fmt.Sprintf("date_for %s is in the future (today is %s)",
		e.DateFor.Format(time.DateOnly), e.Today.Format(time.DateOnly))
}

// AsDate truncates t to midnight UTC of its UTC calendar day.
func AsDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextDay returns midnight of the day after t.
func NextDay(t time.Time) time.Time {
	return AsDate(t).AddDate(0, 0, 1)
}

// PrevDay returns midnight of the day before t.
func PrevDay(t time.Time) time.Time {
	return AsDate(t).AddDate(0, 0, -1)
}

// MonthStart returns midnight of the first day of t's month.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// PreviousMonth returns the first day of the month before t's month.
func PreviousMonth(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, -1, 0)
}

// DateForRule resolves the effective day a pipeline run reports on.
//
// A zero dateFor or today resolves to yesterday, so a run always covers a
// complete day. Past days are used as given. Future days return
// *DateForCannotBeFutureError.
func DateForRule(dateFor, now time.Time) (time.Time, error) {
	today := AsDate(now)
	if dateFor.IsZero() {
		return PrevDay(today), nil
	}
	d := AsDate(dateFor)
	switch {
	case d.After(today):
		return time.Time{}, &DateForCannotBeFutureError{DateFor: d, Today: today}
	case d.Equal(today):
		return PrevDay(today), nil
	default:
		return d, nil
	}
}

// DaysBetween returns every day from start through end inclusive, ascending.
// It returns nil when end is before start.
func DaysBetween(start, end time.Time) []time.Time {
	start, end = AsDate(start), AsDate(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// MonthsBetween returns the first day of every month from start's month
// through end's month inclusive, ascending.
func MonthsBetween(start, end time.Time) []time.Time {
	start, end = MonthStart(start), MonthStart(end)
	var months []time.Time
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}
