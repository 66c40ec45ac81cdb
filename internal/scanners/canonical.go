package scanners

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arkologystudio/lumen/pkg/models"
)

var indexFileNames = []string{"index.html", "index.htm", "index.php", "default.htm", "default.html"}

type CanonicalScanner struct{}

func NewCanonicalScanner() *CanonicalScanner { return &CanonicalScanner{} }

func (s *CanonicalScanner) Name() string     { return "canonical_urls" }
func (s *CanonicalScanner) Category() string { return models.CategorySEO }
func (s *CanonicalScanner) Weight() float64  { return 1.0 }
func (s *CanonicalScanner) Scope() Scope     { return ScopePage }

func (s *CanonicalScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	res := newResult(s)
	res.SetEvidence(models.EvidenceCheckedURL, sc.PageURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sc.HTML))
	if err != nil {
		res.Status = models.StatusWarn
		res.Score = 0.3
		res.Message = "Page HTML could not be parsed for canonical link"
		res.SetEvidence(models.EvidenceFound, false)
		return res, nil
	}

	canonical, found := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	canonical = strings.TrimSpace(canonical)
	res.SetEvidence(models.EvidenceFound, found && canonical != "")

	if !found || canonical == "" {
		res.Status = models.StatusWarn
		res.Score = 0.3
		res.Message = "No canonical URL declared"
		res.Recommendation = `Add <link rel="canonical"> so agents know the authoritative URL for this page`
		return res, nil
	}
	res.SetEvidence("canonical_url", canonical)

	issues := validateCanonical(canonical)
	if len(issues) > 0 {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = "Canonical URL is malformed"
		res.Recommendation = "Use an absolute, cleanly formed https URL without index file suffixes"
		res.SetEvidence(models.EvidenceIsValid, false)
		res.SetEvidence("issues", issues)
		return res, nil
	}
	res.SetEvidence(models.EvidenceIsValid, true)

	ogURL, hasOG := doc.Find(`meta[property="og:url"]`).First().Attr("content")
	ogURL = strings.TrimSpace(ogURL)
	if hasOG && ogURL != "" {
		res.SetEvidence("og_url", ogURL)
		if !sameHostAndPath(canonical, ogURL) {
			res.Status = models.StatusWarn
			res.Score = 0.7
			res.Message = "Canonical URL and og:url disagree"
			res.Recommendation = "Align og:url with the canonical URL to avoid ambiguity"
			return res, nil
		}
	}

	res.Status = models.StatusPass
	res.Score = 1.0
	res.Message = "Canonical URL is well-formed"
	return res, nil
}

func validateCanonical(canonical string) []string {
	var issues []string

	if strings.Contains(canonical, " ") {
		issues = append(issues, "canonical URL contains spaces")
	}

	u, err := url.Parse(canonical)
	if err != nil {
		return append(issues, "canonical URL does not parse: "+err.Error())
	}
	if !u.IsAbs() {
		issues = append(issues, "canonical URL is relative")
	} else if u.Scheme != "http" && u.Scheme != "https" {
		issues = append(issues, "canonical URL scheme is not http(s)")
	}

	lowerPath := strings.ToLower(u.Path)
	for _, idx := range indexFileNames {
		if strings.HasSuffix(lowerPath, "/"+idx) {
			issues = append(issues, "canonical URL points at an index file")
			break
		}
	}

	return issues
}

func sameHostAndPath(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimRight(ua.Path, "/") == strings.TrimRight(ub.Path, "/")
}
