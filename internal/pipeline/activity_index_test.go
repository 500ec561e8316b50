// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import (
	"testing"
	"time"

	"github.com/tomtom215/figures/internal/models"
)

func TestActivityIndex(t *testing.T) {
	t.Parallel()

	base := day(2020, 3, 1)
	idx := NewActivityIndex([]models.ActivityRecord{
		{ID: 1, StudentID: 1, CourseID: "a", Modified: base},
		{ID: 2, StudentID: 1, CourseID: "a", Modified: base.Add(2 * time.Hour)},
		{ID: 3, StudentID: 1, CourseID: "a", Modified: base.Add(time.Hour)},
		{ID: 4, StudentID: 1, CourseID: "b", Modified: base},
		{ID: 5, StudentID: 3, CourseID: "a", Modified: base},
		{ID: 6, StudentID: 3, CourseID: "a", Modified: base},
	})

	rec, ok := idx.Latest(1, "a")
	if !ok || rec.ID != 2 {
		t.Errorf("Latest(1, a) = %+v, %v; want id 2", rec, ok)
	}
	if rec, _ := idx.Latest(3, "a"); rec.ID != 6 {
		t.Errorf("tie on modified should keep the higher id, got %d", rec.ID)
	}
	if _, ok := idx.Latest(2, "a"); ok {
		t.Error("expected no record for learner 2")
	}
	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", idx.Len())
	}
	learners := idx.Learners()
	if len(learners) != 2 || learners[0] != 1 || learners[1] != 3 {
		t.Errorf("Learners() = %v", learners)
	}
}
