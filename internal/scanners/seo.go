package scanners

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arkologystudio/lumen/pkg/models"
)

// Composite weights for the basic SEO check. They sum to 100.
const (
	seoTitleWeight = 30
	seoMetaWeight  = 30
	seoH1Weight    = 25
	seoOGWeight    = 15
)

var ogCoreTags = []string{"og:title", "og:description", "og:image", "og:url"}

type SEOBasicScanner struct{}

func NewSEOBasicScanner() *SEOBasicScanner { return &SEOBasicScanner{} }

func (s *SEOBasicScanner) Name() string     { return "seo_basic" }
func (s *SEOBasicScanner) Category() string { return models.CategorySEO }
func (s *SEOBasicScanner) Weight() float64  { return 1.5 }
func (s *SEOBasicScanner) Scope() Scope     { return ScopePage }

func (s *SEOBasicScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	res := newResult(s)
	res.SetEvidence(models.EvidenceCheckedURL, sc.PageURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sc.HTML))
	if err != nil {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = "Page HTML could not be parsed"
		res.SetEvidence(models.EvidenceFound, false)
		return res, nil
	}
	res.SetEvidence(models.EvidenceFound, true)

	title := strings.TrimSpace(doc.Find("title").First().Text())
	metaDesc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	metaDesc = strings.TrimSpace(metaDesc)
	h1Count := doc.Find("h1").Length()

	ogPresent := 0
	for _, tag := range ogCoreTags {
		if v, ok := doc.Find(`meta[property="` + tag + `"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			ogPresent++
		}
	}

	titleScore := lengthScore(len(title), 30, 60)
	metaScore := lengthScore(len(metaDesc), 120, 160)
	h1Score := h1HeadingScore(h1Count)
	ogScore := float64(ogPresent) / float64(len(ogCoreTags))

	res.SetEvidence("title_length", len(title))
	res.SetEvidence("meta_description_length", len(metaDesc))
	res.SetEvidence("h1_count", h1Count)
	res.SetEvidence("og_tags_present", ogPresent)
	res.SetEvidence("component_scores", map[string]float64{
		"title":            titleScore,
		"meta_description": metaScore,
		"h1":               h1Score,
		"open_graph":       ogScore,
	})

	total := (titleScore*seoTitleWeight + metaScore*seoMetaWeight +
		h1Score*seoH1Weight + ogScore*seoOGWeight) / 100

	res.Score = total
	switch {
	case total >= 0.8:
		res.Status = models.StatusPass
		res.Message = "Core SEO metadata is in good shape"
	case total >= 0.5:
		res.Status = models.StatusWarn
		res.Message = "Core SEO metadata is incomplete"
		res.Recommendation = seoRecommendation(titleScore, metaScore, h1Score, ogScore)
	default:
		res.Status = models.StatusFail
		res.Message = "Core SEO metadata is largely missing"
		res.Recommendation = seoRecommendation(titleScore, metaScore, h1Score, ogScore)
	}
	return res, nil
}

// lengthScore gives 1.0 inside the optimal range, 0 when absent, and a flat
// partial credit otherwise.
func lengthScore(length, optMin, optMax int) float64 {
	switch {
	case length == 0:
		return 0
	case length >= optMin && length <= optMax:
		return 1.0
	default:
		return 0.5
	}
}

func h1HeadingScore(count int) float64 {
	switch count {
	case 1:
		return 1.0
	case 0:
		return 0
	default:
		return 0.5
	}
}

func seoRecommendation(title, meta, h1, og float64) string {
	var parts []string
	if title < 1 {
		parts = append(parts, "a 30-60 character title")
	}
	if meta < 1 {
		parts = append(parts, "a 120-160 character meta description")
	}
	if h1 < 1 {
		parts = append(parts, "exactly one H1 heading")
	}
	if og < 1 {
		parts = append(parts, "complete Open Graph tags")
	}
	if len(parts) == 0 {
		return ""
	}
	return "Provide " + strings.Join(parts, ", ")
}
