// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import (
	"sort"

	"github.com/tomtom215/figures/internal/models"
)

// enrollmentKey joins activity to enrollments. ActivityRecord has no
// enrollment id, so (learner, course) is the only join available.
type enrollmentKey struct {
	userID   int64
	courseID string
}

// ActivityIndex holds the most recently modified activity record per
// (learner, course) pair.
type ActivityIndex struct {
	latest map[enrollmentKey]models.ActivityRecord
}

// NewActivityIndex indexes records. Ties on modified keep the higher id.
func NewActivityIndex(records []models.ActivityRecord) *ActivityIndex {
	idx := &ActivityIndex{latest: make(map[enrollmentKey]models.ActivityRecord, len(records))}
	for _, r := range records {
		key := enrollmentKey{userID: r.StudentID, courseID: r.CourseID}
		cur, ok := idx.latest[key]
		if !ok || r.Modified.After(cur.Modified) || (r.Modified.Equal(cur.Modified) && r.ID > cur.ID) {
			idx.latest[key] = r
		}
	}
	return idx
}

// Latest returns the newest activity record of userID in courseID.
func (idx *ActivityIndex) Latest(userID int64, courseID string) (models.ActivityRecord, bool) {
	r, ok := idx.latest[enrollmentKey{userID: userID, courseID: courseID}]
	return r, ok
}

// Learners returns the distinct learner ids in the index, ascending.
func (idx *ActivityIndex) Learners() []int64 {
	seen := make(map[int64]struct{}, len(idx.latest))
	for key := range idx.latest {
		seen[key.userID] = struct{}{}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len is the number of (learner, course) pairs.
func (idx *ActivityIndex) Len() int {
	return len(idx.latest)
}

// distinctLearners counts distinct students across records.
func distinctLearners(records []models.ActivityRecord) int {
	seen := make(map[int64]struct{})
	for _, r := range records {
		seen[r.StudentID] = struct{}{}
	}
	return len(seen)
}
