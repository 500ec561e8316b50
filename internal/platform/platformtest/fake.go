// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package platformtest provides an in-memory platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform"
)

// Platform is an in-memory platform.Reader and platform.GradeSource.
// Fields may be populated directly before use.
type Platform struct {
	mu sync.Mutex

	SiteList      []models.Site
	Organizations []models.Organization
	OrgSites      map[int64][]int64  // org id -> site ids
	OrgCourses    map[int64][]string // org id -> course ids
	OrgUsers      map[int64][]int64  // org id -> user ids
	CourseList    []models.Course
	UserList      []models.User
	Roles         []models.CourseRole
	EnrollmentSet []models.Enrollment
	Activity      []models.ActivityRecord
	CompletionSet []models.Completion

	// Grades keyed by GradeKey(user, course).
	Grades map[string][]models.GradedSection
	// GradeErrors makes LearnerGradeStructure fail for the given keys.
	GradeErrors map[string]error
	GradeCalls  int
}

var (
	_ platform.Reader      = (*Platform)(nil)
	_ platform.GradeSource = (*Platform)(nil)
)

func New() *Platform {
	return &Platform{
		OrgSites:    map[int64][]int64{},
		OrgCourses:  map[int64][]string{},
		OrgUsers:    map[int64][]int64{},
		Grades:      map[string][]models.GradedSection{},
		GradeErrors: map[string]error{},
	}
}

func GradeKey(userID int64, courseID string) string {
	return fmt.Sprintf("%d|%s", userID, courseID)
}

func (p *Platform) Sites(context.Context) ([]models.Site, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Site(nil), p.SiteList...), nil
}

func (p *Platform) Site(_ context.Context, id int64) (*models.Site, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.SiteList {
		if s.ID == id {
			site := s
			return &site, nil
		}
	}
	return nil, platform.ErrSiteNotFound
}

func (p *Platform) Courses(_ context.Context, q platform.CourseQuery) ([]models.Course, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var allowed map[string]bool
	if len(q.OrgIDs) > 0 {
		allowed = map[string]bool{}
		for _, org := range q.OrgIDs {
			for _, cid := range p.OrgCourses[org] {
				allowed[cid] = true
			}
		}
	}
	var out []models.Course
	for _, c := range p.CourseList {
		if allowed != nil && !allowed[c.ID] {
			continue
		}
		if len(q.IDs) > 0 && !slices.Contains(q.IDs, c.ID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *Platform) Course(ctx context.Context, id string) (*models.Course, error) {
	courses, _ := p.Courses(ctx, platform.CourseQuery{IDs: []string{id}})
	if len(courses) == 0 {
		return nil, platform.ErrCourseNotFound
	}
	return &courses[0], nil
}

func (p *Platform) Users(_ context.Context, q platform.UserQuery) ([]models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var allowed map[int64]bool
	if len(q.OrgIDs) > 0 {
		allowed = map[int64]bool{}
		for _, org := range q.OrgIDs {
			for _, uid := range p.OrgUsers[org] {
				allowed[uid] = true
			}
		}
	}
	var out []models.User
	for _, u := range p.UserList {
		if allowed != nil && !allowed[u.ID] {
			continue
		}
		if !q.JoinedBefore.IsZero() && !u.DateJoined.Before(q.JoinedBefore) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (p *Platform) OrganizationsForCourse(_ context.Context, courseID string) ([]models.Organization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Organization
	for _, o := range p.Organizations {
		if slices.Contains(p.OrgCourses[o.ID], courseID) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Platform) OrganizationsForSite(_ context.Context, siteID int64) ([]models.Organization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Organization
	for _, o := range p.Organizations {
		if slices.Contains(p.OrgSites[o.ID], siteID) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Platform) SitesForOrganization(_ context.Context, orgID int64) ([]models.Site, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Site
	for _, s := range p.SiteList {
		if slices.Contains(p.OrgSites[orgID], s.ID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *Platform) Enrollments(_ context.Context, q platform.EnrollmentQuery) ([]models.Enrollment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Enrollment
	for _, e := range p.EnrollmentSet {
		if len(q.CourseIDs) > 0 && !slices.Contains(q.CourseIDs, e.CourseID) {
			continue
		}
		if q.UserID != 0 && e.UserID != q.UserID {
			continue
		}
		if !q.CreatedBefore.IsZero() && !e.Created.Before(q.CreatedBefore) {
			continue
		}
		if q.ActiveOnly && !e.IsActive {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *Platform) FirstEnrollments(ctx context.Context, courseIDs []string) (map[string]time.Time, error) {
	enrollments, _ := p.Enrollments(ctx, platform.EnrollmentQuery{CourseIDs: courseIDs})
	out := map[string]time.Time{}
	for _, e := range enrollments {
		if first, ok := out[e.CourseID]; !ok || e.Created.Before(first) {
			out[e.CourseID] = e.Created
		}
	}
	return out, nil
}

func (p *Platform) CourseStaffIDs(_ context.Context, courseID string) ([]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int64
	for _, r := range p.Roles {
		if r.CourseID == courseID && !slices.Contains(out, r.UserID) {
			out = append(out, r.UserID)
		}
	}
	return out, nil
}

func inWindow(t, from, before time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !before.IsZero() && !t.Before(before) {
		return false
	}
	return true
}

func (p *Platform) ActivityRecords(_ context.Context, q platform.ActivityQuery) ([]models.ActivityRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ActivityRecord
	for _, r := range p.Activity {
		if len(q.CourseIDs) > 0 && !slices.Contains(q.CourseIDs, r.CourseID) {
			continue
		}
		if q.StudentID != 0 && r.StudentID != q.StudentID {
			continue
		}
		match := inWindow(r.Modified, q.From, q.Before)
		if !match && q.IncludeCreated {
			match = inWindow(r.Created, q.From, q.Before)
		}
		if match {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *Platform) FirstActivity(ctx context.Context, courseIDs []string) (time.Time, bool, error) {
	records, _ := p.ActivityRecords(ctx, platform.ActivityQuery{CourseIDs: courseIDs})
	if len(records) == 0 {
		return time.Time{}, false, nil
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Created.Before(records[j].Created) })
	return records[0].Created, true, nil
}

func (p *Platform) Completions(_ context.Context, q platform.CompletionQuery) ([]models.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Completion
	for _, c := range p.CompletionSet {
		if len(q.CourseIDs) > 0 && !slices.Contains(q.CourseIDs, c.CourseID) {
			continue
		}
		if !q.CreatedBefore.IsZero() && !c.CreatedDate.Before(q.CreatedBefore) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *Platform) LearnerGradeStructure(_ context.Context, userID int64, courseID string) ([]models.GradedSection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GradeCalls++
	key := GradeKey(userID, courseID)
	if err := p.GradeErrors[key]; err != nil {
		return nil, err
	}
	return p.Grades[key], nil
}
