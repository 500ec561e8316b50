// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package backfill

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func openTestBadger(t *testing.T, dir string) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	return db
}

func TestCheckpointStores(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) CheckpointStore{
		"memory": func(*testing.T) CheckpointStore { return NewMemoryCheckpoints() },
		"badger": func(t *testing.T) CheckpointStore {
			db := openTestBadger(t, filepath.Join(t.TempDir(), "badger"))
			t.Cleanup(func() { _ = db.Close() })
			return NewBadgerCheckpoints(db)
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := newStore(t)
			ctx := context.Background()

			cp, err := store.Load(ctx, 1)
			if err != nil || cp != nil {
				t.Fatalf("Load() on empty store = %v, %v", cp, err)
			}

			if err := store.Save(ctx, &Checkpoint{SiteID: 1, LastDate: day(2020, 3, 4)}); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := store.Save(ctx, &Checkpoint{SiteID: 2, LastDate: day(2020, 1, 1)}); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			cp, err = store.Load(ctx, 1)
			if err != nil || cp == nil || !cp.LastDate.Equal(day(2020, 3, 4)) {
				t.Fatalf("Load() = %+v, %v", cp, err)
			}

			if err := store.Clear(ctx, 1); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			if err := store.Clear(ctx, 1); err != nil {
				t.Fatalf("second Clear() error = %v", err)
			}
			if cp, _ := store.Load(ctx, 1); cp != nil {
				t.Errorf("Load() after Clear = %+v", cp)
			}
			if cp, _ := store.Load(ctx, 2); cp == nil {
				t.Error("clearing site 1 removed site 2")
			}
		})
	}
}

func TestBadgerCheckpointsSurviveReopen(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()

	store, db, err := OpenBadgerCheckpoints(dir)
	if err != nil {
		t.Fatalf("OpenBadgerCheckpoints() error = %v", err)
	}
	if err := store.Save(ctx, &Checkpoint{SiteID: 5, LastDate: day(2021, 6, 30)}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, db2, err := OpenBadgerCheckpoints(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db2.Close()

	cp, err := reopened.Load(ctx, 5)
	if err != nil || cp == nil || !cp.LastDate.Equal(day(2021, 6, 30)) {
		t.Errorf("Load() after reopen = %+v, %v", cp, err)
	}
}
