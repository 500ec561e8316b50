// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/figures/internal/models"
)

// Scope answers site-scoped questions by combining a Reader with a SiteResolver.
type Scope struct {
	reader   Reader
	resolver SiteResolver
}

func NewScope(reader Reader, resolver SiteResolver) *Scope {
	return &Scope{reader: reader, resolver: resolver}
}

func (s *Scope) Reader() Reader { return s.reader }

func (s *Scope) Resolver() SiteResolver { return s.resolver }

func (s *Scope) Sites(ctx context.Context) ([]models.Site, error) {
	return s.resolver.Sites(ctx)
}

// CoursesForSite lists the courses owned by site.
func (s *Scope) CoursesForSite(ctx context.Context, site *models.Site) ([]models.Course, error) {
	orgIDs, scoped, err := s.resolver.OrganizationIDs(ctx, site)
	if err != nil {
		return nil, err
	}
	if scoped && len(orgIDs) == 0 {
		return nil, nil
	}
	courses, err := s.reader.Courses(ctx, CourseQuery{OrgIDs: orgIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to list courses for site %d: %w", site.ID, err)
	}
	return courses, nil
}

// CourseIDsForSite is CoursesForSite reduced to ids.
func (s *Scope) CourseIDsForSite(ctx context.Context, site *models.Site) ([]string, error) {
	courses, err := s.CoursesForSite(ctx, site)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// UsersForSite lists site users, optionally only those who joined before joinedBefore.
func (s *Scope) UsersForSite(ctx context.Context, site *models.Site, joinedBefore time.Time) ([]models.User, error) {
	orgIDs, scoped, err := s.resolver.OrganizationIDs(ctx, site)
	if err != nil {
		return nil, err
	}
	if scoped && len(orgIDs) == 0 {
		return nil, nil
	}
	users, err := s.reader.Users(ctx, UserQuery{OrgIDs: orgIDs, JoinedBefore: joinedBefore})
	if err != nil {
		return nil, fmt.Errorf("failed to list users for site %d: %w", site.ID, err)
	}
	return users, nil
}

// EnrollmentsForSite restricts q to the courses of site.
func (s *Scope) EnrollmentsForSite(ctx context.Context, site *models.Site, q EnrollmentQuery) ([]models.Enrollment, error) {
	ids, err := s.CourseIDsForSite(ctx, site)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	q.CourseIDs = ids
	return s.reader.Enrollments(ctx, q)
}

// ActivityForSite restricts q to the courses of site.
func (s *Scope) ActivityForSite(ctx context.Context, site *models.Site, q ActivityQuery) ([]models.ActivityRecord, error) {
	ids, err := s.CourseIDsForSite(ctx, site)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	q.CourseIDs = ids
	records, err := s.reader.ActivityRecords(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity for site %d: %w", site.ID, err)
	}
	return records, nil
}

// ActivityForCourse restricts q to one course.
func (s *Scope) ActivityForCourse(ctx context.Context, courseID string, q ActivityQuery) ([]models.ActivityRecord, error) {
	q.CourseIDs = []string{courseID}
	records, err := s.reader.ActivityRecords(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity for course %s: %w", courseID, err)
	}
	return records, nil
}

// CourseInSite reports whether courseID resolves to site.
func (s *Scope) CourseInSite(ctx context.Context, site *models.Site, courseID string) (bool, error) {
	owner, err := s.resolver.SiteForCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	return owner != nil && owner.ID == site.ID, nil
}
