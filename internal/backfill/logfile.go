// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package backfill

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LogFileName returns the per-site, per-date backfill log name.
func LogFileName(siteID int64, dateFor time.Time) string {
	return fmt.Sprintf("backfill-for-site-%d-date-%s.log", siteID, dateFor.Format(time.DateOnly))
}

// dateLog appends progress lines to one backfill log file. A dateLog with no
// directory discards its lines.
type dateLog struct {
	path string
	w    io.WriteCloser
}

func openDateLog(dir string, siteID int64, dateFor time.Time) (*dateLog, error) {
	if dir == "" {
		return &dateLog{w: nopCloser{io.Discard}}, nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backfill log dir: %w", err)
	}
	path := filepath.Join(dir, LogFileName(siteID, dateFor))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) //nolint:gosec // path built from validated ids
	if err != nil {
		return nil, fmt.Errorf("open backfill log: %w", err)
	}
	return &dateLog{path: path, w: f}, nil
}

func (l *dateLog) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.w, format+"\n", args...)
}

func (l *dateLog) Close() error {
	return l.w.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
