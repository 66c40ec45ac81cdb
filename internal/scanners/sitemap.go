package scanners

import (
	"context"
	"fmt"

	"github.com/arkologystudio/lumen/internal/crawler"
	"github.com/arkologystudio/lumen/pkg/models"
	"github.com/arkologystudio/lumen/pkg/utils"
)

const (
	sitemapMaxURLs  = 50000
	sitemapMaxBytes = 50 << 20
)

type XMLSitemapScanner struct{}

func NewXMLSitemapScanner() *XMLSitemapScanner { return &XMLSitemapScanner{} }

func (s *XMLSitemapScanner) Name() string     { return "xml_sitemap" }
func (s *XMLSitemapScanner) Category() string { return models.CategorySEO }
func (s *XMLSitemapScanner) Weight() float64  { return 1.0 }
func (s *XMLSitemapScanner) Scope() Scope     { return ScopeSite }

func (s *XMLSitemapScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	res := newResult(s)

	candidates := []string{sc.SiteURL + "/sitemap.xml", sc.SiteURL + "/sitemap_index.xml"}
	if sc.Robots != nil {
		candidates = append(candidates, crawler.ParseSitemapDirectives(sc.Robots.Content)...)
	}
	candidates = utils.RemoveDuplicates(candidates)
	res.SetEvidence("candidates", candidates)

	var resolved string
	var content string
	for _, candidate := range candidates {
		if sc.Fetch == nil {
			break
		}
		fetched := sc.Fetch(ctx, candidate)
		if fetched != nil && fetched.Error == "" && fetched.StatusCode == 200 {
			resolved = candidate
			content = fetched.HTML
			break
		}
	}

	res.SetEvidence(models.EvidenceFound, resolved != "")
	if resolved == "" {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = "No XML sitemap found"
		res.Recommendation = "Publish a sitemap.xml and declare it in robots.txt"
		return res, nil
	}
	res.SetEvidence(models.EvidenceCheckedURL, resolved)

	info, err := crawler.ParseSitemap(content)
	issues := validateSitemap(info, err, len(content))
	res.SetEvidence("validation_issues", issues)
	res.SetEvidence(models.EvidenceIsValid, len(issues) == 0)

	if len(issues) > 0 {
		res.Status = models.StatusFail
		res.Score = 0.2
		res.Message = "Sitemap found but failed validation"
		res.Recommendation = "Fix the sitemap so it is well-formed XML within protocol limits"
		return res, nil
	}

	res.SetEvidence("url_count", len(info.URLs))
	res.SetEvidence("is_index", info.IsIndex)
	res.SetEvidence("has_lastmod", info.HasLastMod)

	res.Status = models.StatusPass
	res.Score = 0.8
	res.Message = fmt.Sprintf("Valid sitemap with %d entries", len(info.URLs))
	if info.HasLastMod || info.HasFreqInfo {
		res.Score = 1.0
		res.Message += " including freshness metadata"
	}
	return res, nil
}

func validateSitemap(info *crawler.SitemapInfo, parseErr error, sizeBytes int) []string {
	var issues []string
	if parseErr != nil {
		return append(issues, "sitemap is not valid XML: "+parseErr.Error())
	}
	if len(info.URLs) == 0 {
		issues = append(issues, "sitemap contains no URLs")
	}
	if len(info.URLs) > sitemapMaxURLs {
		issues = append(issues, fmt.Sprintf("sitemap exceeds %d URL limit", sitemapMaxURLs))
	}
	if sizeBytes > sitemapMaxBytes {
		issues = append(issues, "sitemap exceeds 50MB size limit")
	}
	return issues
}
