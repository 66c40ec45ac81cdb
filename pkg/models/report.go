package models

import (
	"math"
	"sort"
	"time"
)

const (
	ScoreCategoryDiscovery     = "discovery"
	ScoreCategoryUnderstanding = "understanding"
	ScoreCategoryActions       = "actions"
	ScoreCategoryTrust         = "trust"

	ProfileEcommerce   = "ecommerce"
	ProfileBlogContent = "blog_content"
	ProfileSaaS        = "saas"
	ProfileUnknown     = "unknown"

	ProfileMethodHeuristic = "heuristic"
	ProfileMethodDeclared  = "declared"
)

// CategoryWeights are the fixed top-level weights. They sum to 1.0.
var CategoryWeights = map[string]float64{
	ScoreCategoryDiscovery:     0.30,
	ScoreCategoryUnderstanding: 0.30,
	ScoreCategoryActions:       0.25,
	ScoreCategoryTrust:         0.15,
}

// ScoreCategories lists the four buckets in report order.
var ScoreCategories = []string{
	ScoreCategoryDiscovery,
	ScoreCategoryUnderstanding,
	ScoreCategoryActions,
	ScoreCategoryTrust,
}

type CategoryScore struct {
	Category        string             `json:"category"`
	Score           float64            `json:"score"`
	IndicatorScores map[string]float64 `json:"indicator_scores"`
}

type SiteProfileResult struct {
	Profile    string   `json:"profile"`
	Confidence float64  `json:"confidence"`
	Method     string   `json:"method"`
	Signals    []string `json:"signals,omitempty"`
}

type OverallScore struct {
	Raw      float64 `json:"raw_0_1"`
	Score100 int     `json:"score_0_100"`
}

// AuditReport is the immutable output of one aggregation pass. A new audit
// always produces a new report.
type AuditReport struct {
	SiteURL          string                   `json:"site_url"`
	ScanDate         time.Time                `json:"scan_date"`
	ProfileDetection SiteProfileResult        `json:"profile_detection"`
	Categories       map[string]CategoryScore `json:"categories"`
	Indicators       map[string]ScannerResult `json:"indicators"`
	Weights          map[string]float64       `json:"weights"`
	Overall          OverallScore             `json:"overall"`
	Summary          string                   `json:"summary,omitempty"`
	PagesScanned     int                      `json:"pages_scanned"`
}

// RecomputeOverall derives the overall score from the report's own categories
// and weights. Stored reports must round-trip through this exactly.
func (r *AuditReport) RecomputeOverall() OverallScore {
	// Fixed category order keeps the float sum identical across calls.
	var raw float64
	for _, name := range ScoreCategories {
		w, ok := r.Weights[name]
		if !ok {
			continue
		}
		if cs, ok := r.Categories[name]; ok {
			raw += w * cs.Score
		}
	}
	return OverallScore{Raw: raw, Score100: int(math.Round(raw * 100))}
}

// IndicatorNames returns the report's indicator keys in sorted order.
func (r *AuditReport) IndicatorNames() []string {
	names := make([]string, 0, len(r.Indicators))
	for name := range r.Indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
