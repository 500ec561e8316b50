// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/figures/internal/config"
	"github.com/tomtom215/figures/internal/models"
)

// testDBSemaphore limits concurrent database creation to prevent resource exhaustion in CI.
// Setting to 1 fully serializes DuckDB usage across parallel tests.
var testDBSemaphore = make(chan struct{}, 1)

// testDBMutex serializes database creation.
var testDBMutex sync.Mutex

// setupTestDB creates a new in-memory test database with timeout protection.
// The semaphore is held for the whole test and released by t.Cleanup.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	type result struct {
		db  *DB
		err error
	}

	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		db, err := New(cfg)
		testDBMutex.Unlock()
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s (DuckDB may be under resource pressure)")
		return nil
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewInitializesSchema(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	checkNoError(t, db.Ping(ctx))

	counts, err := db.GetRecordCounts(ctx)
	checkNoError(t, err)
	for _, table := range countedTables {
		n, ok := counts[table]
		if !ok {
			t.Errorf("missing count for %s", table)
		}
		checkInt64Equal(t, table, n, 0)
	}

	version, err := db.GetCurrentSchemaVersion(ctx)
	checkNoError(t, err)
	if version != len(getMigrations()) {
		t.Errorf("schema version = %d, want %d", version, len(getMigrations()))
	}

	history, err := db.GetMigrationHistory(ctx)
	checkNoError(t, err)
	if len(history) != len(getMigrations()) {
		t.Fatalf("expected %d applied migrations, got %d", len(getMigrations()), len(history))
	}
	checkStringEqual(t, "first migration", history[0].Name, "index_pipeline_errors_created")
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	checkNoError(t, db.runVersionedMigrations())
	checkNoError(t, db.createTables())

	version, err := db.GetCurrentSchemaVersion(context.Background())
	checkNoError(t, err)
	if version != len(getMigrations()) {
		t.Errorf("schema version = %d after re-run", version)
	}
}

func TestGetDatabasePath(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	checkStringEqual(t, "path", db.GetDatabasePath(), ":memory:")
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "?"},
		{3, "?, ?, ?"},
	}
	for _, tt := range tests {
		if got := placeholders(tt.n); got != tt.want {
			t.Errorf("placeholders(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestQueryBuilder(t *testing.T) {
	t.Parallel()

	qb := newQueryBuilder("SELECT * FROM t WHERE 1=1")
	qb.addFilter("a = ?", 1)
	addInFilter(qb, "b", []string{"x", "y"})
	addInFilter(qb, "c", []int64{})
	query, args := qb.build("ORDER BY a")

	checkStringEqual(t, "query", query, "SELECT * FROM t WHERE 1=1 AND a = ? AND b IN (?, ?) ORDER BY a")
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}
}

func TestAsDate(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*3600)
	got := asDate(time.Date(2020, 3, 1, 22, 30, 0, 0, loc))
	if !got.Equal(day(2020, 3, 2)) {
		t.Errorf("asDate() = %v, want 2020-03-02 UTC", got)
	}
}

// seedPlatform loads a small two-site platform into db.
func seedPlatform(t *testing.T, db *DB) {
	t.Helper()

	start := day(2020, 1, 5)
	snap := &Snapshot{
		Sites:         []models.Site{{ID: 1, Domain: "alpha.example", Name: "Alpha"}, {ID: 2, Domain: "beta.example"}},
		Organizations: []models.Organization{{ID: 10, Name: "AlphaOrg"}, {ID: 20, Name: "BetaOrg"}},
		OrganizationSites: []OrganizationLink{
			{OrganizationID: 10, SiteID: 1},
			{OrganizationID: 20, SiteID: 2},
		},
		OrganizationCourses: []OrganizationLink{
			{OrganizationID: 10, CourseID: "course-v1:A+1+2020"},
			{OrganizationID: 20, CourseID: "course-v1:B+1+2020"},
		},
		OrganizationUsers: []OrganizationLink{
			{OrganizationID: 10, UserID: 1},
			{OrganizationID: 10, UserID: 2},
			{OrganizationID: 20, UserID: 3},
		},
		Courses: []models.Course{
			{ID: "course-v1:A+1+2020", Name: "A", Created: day(2020, 1, 1), EnrollmentStart: &start},
			{ID: "course-v1:B+1+2020", Name: "B", Created: day(2020, 1, 1)},
		},
		Users: []models.User{
			{ID: 1, Username: "ann", DateJoined: day(2020, 1, 1), IsActive: true},
			{ID: 2, Username: "bob", DateJoined: day(2020, 2, 1), IsActive: true},
			{ID: 3, Username: "cat", DateJoined: day(2020, 1, 1), IsActive: true},
		},
		CourseRoles: []models.CourseRole{{UserID: 2, CourseID: "course-v1:A+1+2020", Role: models.RoleStaff}},
		Enrollments: []models.Enrollment{
			{ID: 1, UserID: 1, CourseID: "course-v1:A+1+2020", Created: day(2020, 1, 10), IsActive: true},
			{ID: 2, UserID: 2, CourseID: "course-v1:A+1+2020", Created: day(2020, 2, 5), IsActive: true},
			{ID: 3, UserID: 3, CourseID: "course-v1:B+1+2020", Created: day(2020, 1, 20), IsActive: false},
		},
		ActivityRecords: []models.ActivityRecord{
			{ID: 1, StudentID: 1, CourseID: "course-v1:A+1+2020", Created: day(2020, 1, 10), Modified: day(2020, 3, 1).Add(10 * time.Hour)},
			{ID: 2, StudentID: 2, CourseID: "course-v1:A+1+2020", Created: day(2020, 3, 1).Add(time.Hour), Modified: day(2020, 3, 5)},
			{ID: 3, StudentID: 3, CourseID: "course-v1:B+1+2020", Created: day(2020, 1, 20), Modified: day(2020, 1, 21)},
		},
		Completions: []models.Completion{{UserID: 1, CourseID: "course-v1:A+1+2020", CreatedDate: day(2020, 2, 20)}},
		GradedSections: []GradedSectionRow{
			{UserID: 1, CourseID: "course-v1:A+1+2020", GradedSection: models.GradedSection{Label: "HW 01", Earned: 2, Possible: 4}},
			{UserID: 1, CourseID: "course-v1:A+1+2020", GradedSection: models.GradedSection{Label: "HW 02", Earned: 0, Possible: 4}},
		},
	}
	if _, err := db.WriteSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
}
