package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/arkologystudio/lumen/internal/fetcher"
	"github.com/arkologystudio/lumen/pkg/models"
	"github.com/arkologystudio/lumen/pkg/utils"
)

var ErrCrawlFailed = errors.New("crawl failed: no pages fetched")

const (
	DefaultMaxPages      = 5
	DefaultMaxConcurrent = 3
)

// Paths probed from homepage links when sitemap discovery yields nothing.
// Order doubles as priority.
var wellKnownPaths = []string{"/about", "/products", "/pricing", "/blog", "/docs", "/contact"}

type Options struct {
	MaxPages       int           `yaml:"max_pages" json:"max_pages"`
	MaxConcurrent  int           `yaml:"max_concurrent" json:"max_concurrent"`
	IncludeSitemap bool          `yaml:"include_sitemap" json:"include_sitemap"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
}

func (o Options) withDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.Timeout <= 0 {
		o.Timeout = fetcher.DefaultTimeout
	}
	return o
}

type Crawler struct {
	fetcher *fetcher.Fetcher
	logger  *logrus.Logger
}

func New(f *fetcher.Fetcher, logger *logrus.Logger) *Crawler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Crawler{fetcher: f, logger: logger}
}

// Crawl discovers and fetches a bounded set of pages for one site. A single
// failed fetch lands in Errors and does not abort the crawl; the crawl as a
// whole fails only when zero pages came back.
func (c *Crawler) Crawl(ctx context.Context, rootURL string, opts Options) (*models.CrawlResult, error) {
	opts = opts.withDefaults()
	start := time.Now()

	root, err := utils.NormalizeSiteURL(rootURL)
	if err != nil {
		return nil, fmt.Errorf("normalize root url: %w", err)
	}

	result := &models.CrawlResult{RootURL: root}
	fetchOpts := fetcher.Options{Timeout: opts.Timeout, UserAgent: opts.UserAgent}

	result.RobotsTxt = c.fetchRobots(ctx, root, fetchOpts)
	sitemapDirectives := ParseSitemapDirectives(result.RobotsTxt.Content)

	var sitemapURLs []string
	if opts.IncludeSitemap {
		sitemapURLs = c.discoverSitemapURLs(ctx, root, sitemapDirectives, fetchOpts)
		result.SitemapURLs = sitemapURLs
	}

	// Homepage comes first, fetched eagerly so its links can seed further
	// candidates when the sitemap gave us nothing.
	home := c.fetcher.Fetch(ctx, root, fetchOpts)
	if home.Error != "" {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", home.URL, home.Error))
	} else {
		result.Pages = append(result.Pages, *home)
	}

	candidates := c.selectCandidates(root, home, sitemapURLs, opts.MaxPages)
	pages, fetchErrors := c.fetchAll(ctx, candidates, opts, fetchOpts)
	result.Pages = append(result.Pages, pages...)
	result.Errors = append(result.Errors, fetchErrors...)

	result.DurationMs = time.Since(start).Milliseconds()

	if len(result.Pages) == 0 {
		return result, ErrCrawlFailed
	}

	c.logger.WithFields(logrus.Fields{
		"root":        root,
		"pages":       len(result.Pages),
		"errors":      len(result.Errors),
		"duration_ms": result.DurationMs,
	}).Info("Crawl completed")

	return result, nil
}

func (c *Crawler) fetchRobots(ctx context.Context, root string, opts fetcher.Options) models.RobotsTxt {
	robotsURL := root + "/robots.txt"
	res := c.fetcher.Fetch(ctx, robotsURL, opts)
	robots := models.RobotsTxt{CheckedURL: robotsURL}
	if res.Error == "" && res.StatusCode == 200 {
		robots.Found = true
		robots.Content = res.HTML
	}
	return robots
}

func (c *Crawler) discoverSitemapURLs(ctx context.Context, root string, directives []string, opts fetcher.Options) []string {
	sitemaps := directives
	if len(sitemaps) == 0 {
		sitemaps = []string{root + "/sitemap.xml"}
	}

	for _, sm := range sitemaps {
		res := c.fetcher.Fetch(ctx, sm, opts)
		if res.Error != "" || res.StatusCode != 200 {
			continue
		}
		urls := ParseSitemapLocations(res.HTML)
		urls = filterSameHost(root, urls)
		if len(urls) > 0 {
			return urls
		}
	}
	return nil
}

// selectCandidates builds the capped non-homepage fetch list: sitemap URLs in
// declared order, then same-host homepage links with well-known paths first.
func (c *Crawler) selectCandidates(root string, home *models.FetchResult, sitemapURLs []string, maxPages int) []string {
	budget := maxPages - 1
	if budget <= 0 {
		return nil
	}

	seen := map[string]struct{}{root: {}}
	var candidates []string
	add := func(u string) {
		if len(candidates) >= budget {
			return
		}
		if _, dup := seen[u]; dup || u == "" {
			return
		}
		seen[u] = struct{}{}
		candidates = append(candidates, u)
	}

	for _, u := range sitemapURLs {
		add(strings.TrimRight(u, "/"))
	}

	if len(candidates) < budget && home != nil && home.HTML != "" {
		for _, link := range extractSameHostLinks(root, home.HTML) {
			add(link)
		}
	}

	return candidates
}

func (c *Crawler) fetchAll(ctx context.Context, urls []string, opts Options, fetchOpts fetcher.Options) ([]models.FetchResult, []string) {
	if len(urls) == 0 {
		return nil, nil
	}

	results := make([]*models.FetchResult, len(urls))
	sem := semaphore.NewWeighted(int64(opts.MaxConcurrent))
	g, gctx := errgroup.WithContext(ctx)

	for i, pageURL := range urls {
		i, pageURL := i, pageURL
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			results[i] = c.fetcher.Fetch(gctx, pageURL, fetchOpts)
			return nil
		})
	}
	_ = g.Wait()

	var pages []models.FetchResult
	var errs []string
	for _, r := range results {
		switch {
		case r == nil:
			// context cancelled before the slot was acquired
		case r.Error != "":
			errs = append(errs, fmt.Sprintf("%s: %s", r.URL, r.Error))
		default:
			pages = append(pages, *r)
		}
	}
	return pages, errs
}

func filterSameHost(root string, urls []string) []string {
	rootU, err := url.Parse(root)
	if err != nil {
		return nil
	}
	var out []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Host, rootU.Host) {
			out = append(out, raw)
		}
	}
	return out
}

// extractSameHostLinks pulls internal links from homepage HTML, ranking
// well-known sections ahead of everything else.
func extractSameHostLinks(root, html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	rootU, err := url.Parse(root)
	if err != nil {
		return nil
	}

	var wellKnown, rest []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		u, err := rootU.Parse(href)
		if err != nil {
			return
		}
		if !strings.EqualFold(u.Host, rootU.Host) {
			return
		}
		u.Fragment = ""
		u.RawQuery = ""
		abs := strings.TrimRight(u.String(), "/")
		if abs == root {
			return
		}
		if isWellKnownPath(u.Path) {
			wellKnown = append(wellKnown, abs)
		} else {
			rest = append(rest, abs)
		}
	})

	return utils.RemoveDuplicates(append(wellKnown, rest...))
}

func isWellKnownPath(path string) bool {
	path = strings.TrimRight(path, "/")
	for _, wk := range wellKnownPaths {
		if strings.EqualFold(path, wk) || strings.HasPrefix(strings.ToLower(path), wk+"/") {
			return true
		}
	}
	return false
}
