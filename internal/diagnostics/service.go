package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arkologystudio/lumen/internal/aggregator"
	"github.com/arkologystudio/lumen/internal/crawler"
	"github.com/arkologystudio/lumen/internal/fetcher"
	"github.com/arkologystudio/lumen/internal/scanners"
	"github.com/arkologystudio/lumen/pkg/models"
	"github.com/arkologystudio/lumen/pkg/utils"
)

const (
	// DefaultCacheTTL is the freshness window for returning a previous
	// completed audit instead of re-running the pipeline.
	DefaultCacheTTL = 24 * time.Hour

	anonymousMaxPages = 3
	anonymousTimeout  = 8 * time.Second
)

var (
	ErrSiteNotFound = errors.New("site not found")
	ErrInvalidURL   = errors.New("invalid site url")
)

// ReportStore is the persistence contract the engine needs; everything beyond
// it is the store's concern.
type ReportStore interface {
	CreateAudit(ctx context.Context, audit *models.Audit) error
	UpdateAudit(ctx context.Context, audit *models.Audit) error
	GetAudit(ctx context.Context, auditID string) (*models.Audit, error)
	SaveReport(ctx context.Context, auditID string, report *models.AuditReport) error
	GetReport(ctx context.Context, auditID string) (*models.AuditReport, error)
	FindLatestCompleted(ctx context.Context, siteID string, since time.Time) (*models.Audit, *models.AuditReport, error)
}

type SiteResolver interface {
	Resolve(ctx context.Context, owner, siteID string) (*models.Site, error)
}

type EntitlementResolver interface {
	Resolve(ctx context.Context, owner string) (models.Entitlement, error)
}

type Options struct {
	SkipCache       bool   `json:"skip_cache"`
	IncludeSitemap  bool   `json:"include_sitemap"`
	DeclaredProfile string `json:"declared_profile,omitempty"`
}

// Result is the caller-facing outcome envelope. Partial results are never
// promoted to completed: Report is only set when the audit finished or was
// served from cache.
type Result struct {
	AuditID    string              `json:"audit_id,omitempty"`
	Status     models.AuditStatus  `json:"status"`
	Report     *models.AuditReport `json:"report,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMs int64               `json:"duration_ms"`
	Cached     bool                `json:"cached"`
}

// Service orchestrates crawl, scan and aggregation into an auditable run. It
// is the sole owner of Audit state; every phase boundary goes through the
// store atomically.
type Service struct {
	crawler       *crawler.Crawler
	fetcher       *fetcher.Fetcher
	registry      *scanners.Registry
	store         ReportStore
	sites         SiteResolver
	entitlements  EntitlementResolver
	precheck      *Precheck
	cacheTTL      time.Duration
	pageTimeout   time.Duration
	maxConcurrent int
	userAgent     string
	logger        *logrus.Logger
	metrics       *utils.MetricsCollector
}

type Config struct {
	CacheTTL      time.Duration
	PageTimeout   time.Duration
	MaxConcurrent int
	UserAgent     string
}

func NewService(
	c *crawler.Crawler,
	f *fetcher.Fetcher,
	registry *scanners.Registry,
	store ReportStore,
	sites SiteResolver,
	entitlements EntitlementResolver,
	cfg Config,
	metrics *utils.MetricsCollector,
	logger *logrus.Logger,
) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = fetcher.DefaultTimeout
	}
	return &Service{
		crawler:       c,
		fetcher:       f,
		registry:      registry,
		store:         store,
		sites:         sites,
		entitlements:  entitlements,
		precheck:      NewPrecheck(logger),
		cacheTTL:      cfg.CacheTTL,
		pageTimeout:   cfg.PageTimeout,
		maxConcurrent: cfg.MaxConcurrent,
		userAgent:     cfg.UserAgent,
		logger:        logger,
		metrics:       metrics,
	}
}

// RunDiagnostic executes an authenticated, persisted audit. Policy errors
// (unknown site, unusable URL) surface as errors before any audit exists;
// everything after audit creation resolves to a terminal audit state.
func (s *Service) RunDiagnostic(ctx context.Context, owner, siteID string, opts Options) (*Result, error) {
	start := time.Now()

	site, err := s.sites.Resolve(ctx, owner, siteID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}

	if !opts.SkipCache {
		since := time.Now().Add(-s.cacheTTL)
		if audit, report, err := s.store.FindLatestCompleted(ctx, siteID, since); err == nil {
			s.countCache("hit")
			s.logger.WithFields(logrus.Fields{"audit_id": audit.ID, "site": site.URL}).Info("Serving cached diagnostic")
			return &Result{
				AuditID:    audit.ID,
				Status:     models.AuditCompleted,
				Report:     report,
				DurationMs: time.Since(start).Milliseconds(),
				Cached:     true,
			}, nil
		}
		s.countCache("miss")
	}

	if err := s.precheck.CheckHost(ctx, site.URL); err != nil {
		return nil, err
	}

	entitlement, err := s.entitlements.Resolve(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("resolve entitlement for %s: %w", owner, err)
	}

	audit := &models.Audit{
		ID:        utils.GenerateID("audit", owner, site.URL),
		Owner:     owner,
		SiteID:    siteID,
		SiteURL:   site.URL,
		Status:    models.AuditPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("create audit: %w", err)
	}

	crawlOpts := crawler.Options{
		MaxPages:       entitlement.MaxPages,
		MaxConcurrent:  s.maxConcurrent,
		IncludeSitemap: opts.IncludeSitemap && entitlement.AllowSitemap,
		Timeout:        s.pageTimeout,
		UserAgent:      s.userAgent,
	}

	done := s.trackInFlight()
	report := s.execute(ctx, audit, crawlOpts, opts.DeclaredProfile)
	done()

	result := &Result{
		AuditID:    audit.ID,
		Status:     audit.Status,
		Report:     report,
		Error:      audit.ErrorMessage,
		DurationMs: time.Since(start).Milliseconds(),
	}
	s.observeAudit("persisted", audit.Status, start)
	return result, nil
}

// RunAnonymousDiagnostic runs the same pipeline with hard limits and no
// persistence: 3 pages, short timeout, no sitemap, no cache. The returned
// audit ID is ephemeral.
func (s *Service) RunAnonymousDiagnostic(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	start := time.Now()

	siteURL, err := utils.NormalizeSiteURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if err := s.precheck.CheckHost(ctx, siteURL); err != nil {
		return nil, err
	}

	audit := &models.Audit{
		ID:        utils.GenerateID("anon", siteURL),
		Owner:     "anonymous",
		SiteURL:   siteURL,
		Status:    models.AuditPending,
		CreatedAt: time.Now().UTC(),
	}

	crawlOpts := crawler.Options{
		MaxPages:       anonymousMaxPages,
		IncludeSitemap: false,
		Timeout:        anonymousTimeout,
		UserAgent:      s.userAgent,
	}

	done := s.trackInFlight()
	report := s.executeEphemeral(ctx, audit, crawlOpts, opts.DeclaredProfile)
	done()

	result := &Result{
		AuditID:    audit.ID,
		Status:     audit.Status,
		Report:     report,
		Error:      audit.ErrorMessage,
		DurationMs: time.Since(start).Milliseconds(),
	}
	s.observeAudit("anonymous", audit.Status, start)
	return result, nil
}

// GetLatestDiagnostic returns the latest completed report for the owner's
// site, or nil when none exists.
func (s *Service) GetLatestDiagnostic(ctx context.Context, owner, siteID string) (*models.AuditReport, error) {
	if _, err := s.sites.Resolve(ctx, owner, siteID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	_, report, err := s.store.FindLatestCompleted(ctx, siteID, time.Time{})
	if err != nil {
		return nil, nil
	}
	return report, nil
}

// execute runs the pipeline for a persisted audit, keeping the stored record
// in lockstep with each phase. It never lets the audit end non-terminal: any
// error or panic lands in failed.
func (s *Service) execute(ctx context.Context, audit *models.Audit, crawlOpts crawler.Options, declaredProfile string) (report *models.AuditReport) {
	defer func() {
		if rec := recover(); rec != nil {
			s.auditLog(audit).Errorf("Diagnostic panicked: %v", rec)
			s.fail(ctx, audit, fmt.Sprintf("internal error: %v", rec))
			report = nil
		}
	}()

	report, err := s.runPipeline(ctx, audit, crawlOpts, declaredProfile, func(status models.AuditStatus) error {
		return s.transition(ctx, audit, status)
	})
	if err != nil {
		s.fail(ctx, audit, err.Error())
		return nil
	}

	if err := s.store.SaveReport(ctx, audit.ID, report); err != nil {
		s.fail(ctx, audit, fmt.Sprintf("persist report: %v", err))
		return nil
	}
	if err := s.transition(ctx, audit, models.AuditCompleted); err != nil {
		return nil
	}
	return report
}

// executeEphemeral is the anonymous variant: same phases, no store.
func (s *Service) executeEphemeral(ctx context.Context, audit *models.Audit, crawlOpts crawler.Options, declaredProfile string) (report *models.AuditReport) {
	defer func() {
		if rec := recover(); rec != nil {
			_ = audit.Fail(fmt.Sprintf("internal error: %v", rec))
			report = nil
		}
	}()

	report, err := s.runPipeline(ctx, audit, crawlOpts, declaredProfile, audit.TransitionTo)
	if err != nil {
		_ = audit.Fail(err.Error())
		return nil
	}
	_ = audit.TransitionTo(models.AuditCompleted)
	return report
}

// runPipeline is the shared crawl -> scan -> score sequence. advance is
// called at each phase boundary.
func (s *Service) runPipeline(ctx context.Context, audit *models.Audit, crawlOpts crawler.Options, declaredProfile string, advance func(models.AuditStatus) error) (*models.AuditReport, error) {
	if err := advance(models.AuditCrawling); err != nil {
		return nil, err
	}
	crawlResult, err := s.crawler.Crawl(ctx, audit.SiteURL, crawlOpts)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}

	if err := advance(models.AuditScanning); err != nil {
		return nil, err
	}
	pageResults := s.scanPages(ctx, crawlResult)

	if err := advance(models.AuditScoring); err != nil {
		return nil, err
	}
	return aggregator.Aggregate(crawlResult.RootURL, pageResults, declaredProfile), nil
}

// scanPages runs the page-scope batch over every scannable page and the
// site-scope batch once against the root. Root probes (llms.txt, robots.txt,
// manifests) do not depend on the homepage rendering, so the site batch runs
// even when the homepage fetch itself failed.
func (s *Service) scanPages(ctx context.Context, crawlResult *models.CrawlResult) map[string][]models.ScannerResult {
	fetch := func(ctx context.Context, url string) *models.FetchResult {
		return s.fetcher.Fetch(ctx, url, fetcher.Options{Timeout: s.pageTimeout, UserAgent: s.userAgent})
	}

	pageResults := make(map[string][]models.ScannerResult)
	pages := crawlResult.SuccessfulPages()
	for _, page := range pages {
		page := page
		sc := &scanners.Context{
			SiteURL:  crawlResult.RootURL,
			PageURL:  page.FinalURL,
			HTML:     page.HTML,
			Metadata: &page,
			Robots:   &crawlResult.RobotsTxt,
			Fetch:    fetch,
		}
		pageResults[page.URL] = s.registry.RunPage(ctx, sc)
	}

	root := &scanners.Context{
		SiteURL: crawlResult.RootURL,
		PageURL: crawlResult.RootURL,
		Robots:  &crawlResult.RobotsTxt,
		Fetch:   fetch,
	}
	for i := range pages {
		if isHomepage(crawlResult.RootURL, pages[i]) {
			root.HTML = pages[i].HTML
			root.Metadata = &pages[i]
			break
		}
	}
	pageResults[crawlResult.RootURL] = append(s.registry.RunSite(ctx, root), pageResults[crawlResult.RootURL]...)
	return pageResults
}

func isHomepage(rootURL string, page models.FetchResult) bool {
	return page.URL == rootURL
}

func (s *Service) transition(ctx context.Context, audit *models.Audit, to models.AuditStatus) error {
	if err := audit.TransitionTo(to); err != nil {
		return err
	}
	if err := s.store.UpdateAudit(ctx, audit); err != nil {
		return fmt.Errorf("persist audit status %s: %w", to, err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, audit *models.Audit, cause string) {
	if audit.Status.Terminal() {
		return
	}
	if err := audit.Fail(cause); err != nil {
		s.auditLog(audit).Errorf("Failed to mark audit failed: %v", err)
		return
	}
	if err := s.store.UpdateAudit(ctx, audit); err != nil {
		s.auditLog(audit).Errorf("Failed to persist failed audit: %v", err)
	}
	s.auditLog(audit).Warnf("Audit failed: %s", cause)
}

func (s *Service) auditLog(audit *models.Audit) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{"audit_id": audit.ID, "site": audit.SiteURL})
}

func (s *Service) countCache(result string) {
	if s.metrics != nil {
		s.metrics.Inc("lumen_cache_total", result)
	}
}

func (s *Service) observeAudit(mode string, status models.AuditStatus, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.Inc("lumen_audit_total", string(status))
	s.metrics.ObserveDuration("lumen_audit_duration_seconds", time.Since(start), mode)
}

func (s *Service) trackInFlight() func() {
	if s.metrics == nil {
		return func() {}
	}
	s.metrics.AddGauge("lumen_audits_in_flight", 1)
	return func() { s.metrics.AddGauge("lumen_audits_in_flight", -1) }
}
