package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/arkologystudio/lumen/pkg/models"
	"github.com/arkologystudio/lumen/pkg/utils"
)

// SiteDirectory is an in-memory site registry scoped by owner.
type SiteDirectory struct {
	mu    sync.RWMutex
	sites map[string]*models.Site
}

func NewSiteDirectory() *SiteDirectory {
	return &SiteDirectory{sites: make(map[string]*models.Site)}
}

// Register normalizes and stores a site for an owner, returning the record.
// Registering the same URL twice for one owner returns the existing record.
func (d *SiteDirectory) Register(owner, rawURL string) (*models.Site, error) {
	normalized, err := utils.NormalizeSiteURL(rawURL)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, site := range d.sites {
		if site.Owner == owner && site.URL == normalized {
			cloned := *site
			return &cloned, nil
		}
	}

	site := &models.Site{
		ID:    utils.GenerateID("site", owner, normalized),
		URL:   normalized,
		Owner: owner,
	}
	d.sites[site.ID] = site
	cloned := *site
	return &cloned, nil
}

// Resolve returns the site only when it belongs to the owner.
func (d *SiteDirectory) Resolve(ctx context.Context, owner, siteID string) (*models.Site, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	site, ok := d.sites[siteID]
	if !ok || site.Owner != owner {
		return nil, fmt.Errorf("site %s for owner %s: %w", siteID, owner, ErrNotFound)
	}
	cloned := *site
	return &cloned, nil
}

// StaticEntitlements resolves crawl caps from a fixed plan table.
type StaticEntitlements struct {
	mu    sync.RWMutex
	plans map[string]string
}

var planCaps = map[string]models.Entitlement{
	models.PlanFree:       {Plan: models.PlanFree, MaxPages: 5},
	models.PlanPro:        {Plan: models.PlanPro, MaxPages: 20, AllowSitemap: true},
	models.PlanEnterprise: {Plan: models.PlanEnterprise, MaxPages: 50, AllowSitemap: true, RetainRawData: true},
}

func NewStaticEntitlements() *StaticEntitlements {
	return &StaticEntitlements{plans: make(map[string]string)}
}

// SetPlan assigns a plan to an owner. Owners without an assignment resolve to
// the free plan.
func (e *StaticEntitlements) SetPlan(owner, plan string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plans[owner] = plan
}

func (e *StaticEntitlements) Resolve(ctx context.Context, owner string) (models.Entitlement, error) {
	e.mu.RLock()
	plan := e.plans[owner]
	e.mu.RUnlock()

	ent, ok := planCaps[plan]
	if !ok {
		ent = planCaps[models.PlanFree]
	}
	return ent, nil
}
