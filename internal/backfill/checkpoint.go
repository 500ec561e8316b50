// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const checkpointKeyPrefix = "backfill:site:"

// Checkpoint is the last date a backfill completed for a site.
type Checkpoint struct {
	SiteID    int64     `json:"site_id"`
	LastDate  time.Time `json:"last_date"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointStore persists per-site backfill progress.
type CheckpointStore interface {
	// Load returns nil, nil when no checkpoint exists for the site.
	Load(ctx context.Context, siteID int64) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	Clear(ctx context.Context, siteID int64) error
}

func checkpointKey(siteID int64) []byte {
	return []byte(fmt.Sprintf("%s%d:checkpoint", checkpointKeyPrefix, siteID))
}

// BadgerCheckpoints stores checkpoints in BadgerDB so a resumed backfill
// survives restarts.
type BadgerCheckpoints struct {
	db *badger.DB
}

func NewBadgerCheckpoints(db *badger.DB) *BadgerCheckpoints {
	return &BadgerCheckpoints{db: db}
}

// OpenBadgerCheckpoints opens (or creates) a Badger directory at path.
// The caller closes the returned DB.
func OpenBadgerCheckpoints(path string) (*BadgerCheckpoints, *badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return NewBadgerCheckpoints(db), db, nil
}

func (b *BadgerCheckpoints) Save(_ context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(cp.SiteID), data)
	})
}

func (b *BadgerCheckpoints) Load(_ context.Context, siteID int64) (*Checkpoint, error) {
	var cp Checkpoint
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(siteID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &cp, nil
}

func (b *BadgerCheckpoints) Clear(_ context.Context, siteID int64) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(checkpointKey(siteID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// MemoryCheckpoints keeps checkpoints for the life of the process. It is used
// when no checkpoint path is configured.
type MemoryCheckpoints struct {
	mu    sync.Mutex
	sites map[int64]Checkpoint
}

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{sites: make(map[int64]Checkpoint)}
}

func (m *MemoryCheckpoints) Save(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[cp.SiteID] = *cp
	return nil
}

func (m *MemoryCheckpoints) Load(_ context.Context, siteID int64) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.sites[siteID]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (m *MemoryCheckpoints) Clear(_ context.Context, siteID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sites, siteID)
	return nil
}
