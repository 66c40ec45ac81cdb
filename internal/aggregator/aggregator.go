package aggregator

import (
	"sort"
	"time"

	"github.com/arkologystudio/lumen/internal/profile"
	"github.com/arkologystudio/lumen/pkg/models"
)

// indicatorCategories is the static indicator -> scoring-bucket mapping. One
// indicator may feed several buckets.
var indicatorCategories = map[string][]string{
	"robots_txt":     {models.ScoreCategoryDiscovery, models.ScoreCategoryTrust},
	"xml_sitemap":    {models.ScoreCategoryDiscovery},
	"canonical_urls": {models.ScoreCategoryDiscovery, models.ScoreCategoryTrust},
	"seo_basic":      {models.ScoreCategoryDiscovery, models.ScoreCategoryUnderstanding},
	"llms_txt":       {models.ScoreCategoryDiscovery, models.ScoreCategoryUnderstanding},
	"json_ld":        {models.ScoreCategoryUnderstanding},
	"mcp":            {models.ScoreCategoryActions},
	"agent_json":     {models.ScoreCategoryActions, models.ScoreCategoryTrust},
	"ai_agent_json":  {models.ScoreCategoryActions, models.ScoreCategoryTrust},
}

// Aggregate folds per-page indicator results into the final report. It is a
// pure function over its inputs: the same unordered result set always yields
// the same report, scan date aside.
func Aggregate(siteURL string, pageResults map[string][]models.ScannerResult, declaredProfile string) *models.AuditReport {
	pageURLs := sortedPages(siteURL, pageResults)
	indicators := flatten(pageURLs, pageResults)

	detection := profile.DetectProfile(indicators, pageURLs, declaredProfile)

	indicatorMap := make(map[string]models.ScannerResult, len(indicators))
	for _, ind := range indicators {
		ind.Normalize()
		applicability := profile.ResolveApplicability(ind.IndicatorName, detection.Profile)
		ind.Applicability = &applicability
		if applicability.Status == models.ApplicabilityNotApplicable {
			ind.Status = models.StatusNotApplicable
		}
		indicatorMap[ind.IndicatorName] = ind
	}

	categories := scoreCategories(indicatorMap)

	report := &models.AuditReport{
		SiteURL:          siteURL,
		ScanDate:         time.Now().UTC(),
		ProfileDetection: detection,
		Categories:       categories,
		Indicators:       indicatorMap,
		Weights:          models.CategoryWeights,
		PagesScanned:     len(pageResults),
	}
	report.Overall = report.RecomputeOverall()
	report.Summary = summarize(report)
	return report
}

// sortedPages fixes the flattening order: homepage first, then lexicographic.
func sortedPages(siteURL string, pageResults map[string][]models.ScannerResult) []string {
	pages := make([]string, 0, len(pageResults))
	for page := range pageResults {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i] == siteURL {
			return true
		}
		if pages[j] == siteURL {
			return false
		}
		return pages[i] < pages[j]
	})
	return pages
}

// flatten dedupes indicators by name; the first occurrence in page order wins.
func flatten(pageURLs []string, pageResults map[string][]models.ScannerResult) []models.ScannerResult {
	seen := make(map[string]struct{})
	var out []models.ScannerResult
	for _, page := range pageURLs {
		for _, ind := range pageResults[page] {
			if _, dup := seen[ind.IndicatorName]; dup {
				continue
			}
			seen[ind.IndicatorName] = struct{}{}
			out = append(out, ind)
		}
	}
	return out
}

func scoreCategories(indicators map[string]models.ScannerResult) map[string]models.CategoryScore {
	categories := make(map[string]models.CategoryScore, len(models.ScoreCategories))

	names := make([]string, 0, len(indicators))
	for name := range indicators {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, category := range models.ScoreCategories {
		scores := make(map[string]float64)
		var sum float64
		count := 0

		// Summation order is fixed so the same input always produces the
		// same float, not merely the same value up to addition order.
		for _, name := range names {
			ind := indicators[name]
			if !mapsToCategory(name, category) {
				continue
			}
			if ind.Applicability == nil || !ind.Applicability.IncludedInCategoryMath {
				continue
			}
			scores[name] = ind.Score
			sum += ind.Score
			count++
		}

		score := 0.0
		if count > 0 {
			score = sum / float64(count)
		}
		categories[category] = models.CategoryScore{
			Category:        category,
			Score:           score,
			IndicatorScores: scores,
		}
	}
	return categories
}

func mapsToCategory(indicatorName, category string) bool {
	for _, c := range indicatorCategories[indicatorName] {
		if c == category {
			return true
		}
	}
	return false
}

func summarize(report *models.AuditReport) string {
	switch s := report.Overall.Score100; {
	case s >= 80:
		return "Excellent agent readiness: this site is highly machine-readable."
	case s >= 60:
		return "Good agent readiness with room to improve in weaker categories."
	case s >= 40:
		return "Moderate agent readiness: several key standards are missing."
	case s >= 20:
		return "Poor agent readiness: most machine-readability signals are absent."
	default:
		return "Minimal agent readiness: autonomous agents will struggle with this site."
	}
}
