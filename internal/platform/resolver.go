// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/models"
)

// Resolver modes.
const (
	ModeStandalone = "standalone"
	ModeMultisite  = "multisite"
)

// SiteResolver decides which site a course belongs to and which organizations
// make up a site. It is chosen once at startup.
type SiteResolver interface {
	Mode() string
	Sites(ctx context.Context) ([]models.Site, error)
	Site(ctx context.Context, id int64) (*models.Site, error)
	// SiteForCourse returns nil, nil when the course is not linked to any site.
	SiteForCourse(ctx context.Context, courseID string) (*models.Site, error)
	// OrganizationIDs returns the organizations of a site. scoped is false when
	// the site implicitly owns everything on the platform.
	OrganizationIDs(ctx context.Context, site *models.Site) (orgIDs []int64, scoped bool, err error)
}

// NewSiteResolver picks the resolver for the configured mode.
func NewSiteResolver(reader Reader, multisite bool, defaultSiteID int64) SiteResolver {
	if multisite {
		return &MultisiteResolver{reader: reader}
	}
	return &StandaloneResolver{reader: reader, siteID: defaultSiteID}
}

// StandaloneResolver maps every course and user to a single default site.
type StandaloneResolver struct {
	reader Reader
	siteID int64
}

func (r *StandaloneResolver) Mode() string { return ModeStandalone }

func (r *StandaloneResolver) defaultSite(ctx context.Context) (*models.Site, error) {
	site, err := r.reader.Site(ctx, r.siteID)
	if errors.Is(err, ErrSiteNotFound) {
		logging.Ctx(ctx).Debug().Int64("site_id", r.siteID).Msg("default site missing from platform mirror, using id only")
		return &models.Site{ID: r.siteID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load default site %d: %w", r.siteID, err)
	}
	return site, nil
}

func (r *StandaloneResolver) Sites(ctx context.Context) ([]models.Site, error) {
	site, err := r.defaultSite(ctx)
	if err != nil {
		return nil, err
	}
	return []models.Site{*site}, nil
}

func (r *StandaloneResolver) Site(ctx context.Context, id int64) (*models.Site, error) {
	if id != r.siteID {
		return nil, fmt.Errorf("site %d in standalone mode (default site is %d): %w", id, r.siteID, ErrSiteNotFound)
	}
	return r.defaultSite(ctx)
}

func (r *StandaloneResolver) SiteForCourse(ctx context.Context, _ string) (*models.Site, error) {
	return r.defaultSite(ctx)
}

func (r *StandaloneResolver) OrganizationIDs(context.Context, *models.Site) ([]int64, bool, error) {
	return nil, false, nil
}

// MultisiteResolver maps courses to sites through their organization.
type MultisiteResolver struct {
	reader Reader
}

func (r *MultisiteResolver) Mode() string { return ModeMultisite }

func (r *MultisiteResolver) Sites(ctx context.Context) ([]models.Site, error) {
	return r.reader.Sites(ctx)
}

func (r *MultisiteResolver) Site(ctx context.Context, id int64) (*models.Site, error) {
	return r.reader.Site(ctx, id)
}

func (r *MultisiteResolver) SiteForCourse(ctx context.Context, courseID string) (*models.Site, error) {
	orgs, err := r.reader.OrganizationsForCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organizations for course %s: %w", courseID, err)
	}
	switch len(orgs) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf("course %s: %w", courseID, ErrMultipleOrganizations)
	}

	sites, err := r.reader.SitesForOrganization(ctx, orgs[0].ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sites for organization %d: %w", orgs[0].ID, err)
	}
	if len(sites) != 1 {
		return nil, fmt.Errorf("organization %q has %d sites: %w", orgs[0].Name, len(sites), ErrOrganizationSiteMapping)
	}
	return &sites[0], nil
}

func (r *MultisiteResolver) OrganizationIDs(ctx context.Context, site *models.Site) ([]int64, bool, error) {
	orgs, err := r.reader.OrganizationsForSite(ctx, site.ID)
	if err != nil {
		return nil, true, fmt.Errorf("failed to load organizations for site %d: %w", site.ID, err)
	}
	ids := make([]int64, 0, len(orgs))
	for _, o := range orgs {
		ids = append(ids, o.ID)
	}
	return ids, true, nil
}
