package aggregator

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/arkologystudio/lumen/pkg/models"
)

func result(name string, score float64, status string) models.ScannerResult {
	return models.ScannerResult{
		IndicatorName: name,
		Status:        status,
		Score:         score,
		Evidence:      map[string]interface{}{},
	}
}

func TestAggregateFirstOccurrenceWins(t *testing.T) {
	site := "https://example.com"
	pageResults := map[string][]models.ScannerResult{
		site:                   {result("seo_basic", 0.9, models.StatusPass)},
		site + "/about":        {result("seo_basic", 0.1, models.StatusFail)},
		site + "/z-other-page": {result("seo_basic", 0.2, models.StatusFail)},
	}

	report := Aggregate(site, pageResults, "")
	ind, ok := report.Indicators["seo_basic"]
	if !ok {
		t.Fatalf("seo_basic missing from report")
	}
	if ind.Score != 0.9 {
		t.Errorf("homepage result should win, got score %v", ind.Score)
	}
	if report.PagesScanned != 3 {
		t.Errorf("PagesScanned = %d, want 3", report.PagesScanned)
	}
}

func TestAggregateDeterministicAcrossMapOrder(t *testing.T) {
	site := "https://example.com"
	pages := map[string][]models.ScannerResult{
		site + "/b": {result("canonical_urls", 0.7, models.StatusWarn)},
		site + "/a": {result("canonical_urls", 0.3, models.StatusWarn)},
	}

	// Run repeatedly; Go map iteration order varies run to run but the
	// flattening must not.
	for i := 0; i < 20; i++ {
		report := Aggregate(site, pages, "")
		if got := report.Indicators["canonical_urls"].Score; got != 0.3 {
			t.Fatalf("iteration %d: score = %v, want 0.3 (lexicographically first page)", i, got)
		}
	}
}

func TestAggregateByteIdenticalAcrossMapOrder(t *testing.T) {
	site := "https://example.com"
	// Scores like 0.1 and 0.3 have no exact binary representation, so any
	// variation in float addition order inside a category shows up in the
	// serialized report. Discovery gets five members, actions and trust
	// three each.
	pages := map[string][]models.ScannerResult{
		site: {
			result("robots_txt", 0.1, models.StatusFail),
			result("xml_sitemap", 0.2, models.StatusWarn),
			result("canonical_urls", 0.3, models.StatusWarn),
			result("seo_basic", 0.1, models.StatusFail),
			result("llms_txt", 0.2, models.StatusWarn),
			result("json_ld", 0.7, models.StatusWarn),
			result("mcp", 0.1, models.StatusFail),
			result("agent_json", 0.2, models.StatusWarn),
			result("ai_agent_json", 0.3, models.StatusWarn),
		},
	}

	serialize := func() []byte {
		report := Aggregate(site, pages, models.ProfileSaaS)
		report.ScanDate = time.Time{}
		raw, err := json.Marshal(report)
		if err != nil {
			t.Fatalf("marshal report: %v", err)
		}
		return raw
	}

	baseline := serialize()
	for i := 0; i < 200; i++ {
		if got := serialize(); !bytes.Equal(got, baseline) {
			t.Fatalf("iteration %d: report bytes differ from baseline\nwant %s\ngot  %s", i, baseline, got)
		}
	}
}

func TestAggregateEmptyCategoryScoresZero(t *testing.T) {
	site := "https://example.com"
	// Only a discovery/trust indicator: actions has no members.
	pageResults := map[string][]models.ScannerResult{
		site: {result("robots_txt", 1.0, models.StatusPass)},
	}

	report := Aggregate(site, pageResults, "")
	actions := report.Categories[models.ScoreCategoryActions]
	if actions.Score != 0 {
		t.Errorf("empty actions category score = %v, want 0", actions.Score)
	}
	if len(actions.IndicatorScores) != 0 {
		t.Errorf("empty category should have no indicator scores")
	}
}

func TestAggregateCategoryMeanIsUnweighted(t *testing.T) {
	site := "https://example.com"
	pageResults := map[string][]models.ScannerResult{
		site: {
			result("mcp", 1.0, models.StatusPass),
			result("agent_json", 0.5, models.StatusWarn),
			result("ai_agent_json", 0.0, models.StatusFail),
		},
	}

	report := Aggregate(site, pageResults, models.ProfileSaaS)
	actions := report.Categories[models.ScoreCategoryActions]
	want := (1.0 + 0.5 + 0.0) / 3
	if diff := actions.Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("actions score = %v, want %v", actions.Score, want)
	}
}

func TestAggregateNotApplicableExcludedFromMath(t *testing.T) {
	site := "https://example.com"
	pageResults := map[string][]models.ScannerResult{
		site: {
			result("mcp", 0.0, models.StatusFail),
			result("json_ld", 1.0, models.StatusPass),
		},
	}

	report := Aggregate(site, pageResults, models.ProfileBlogContent)

	mcp := report.Indicators["mcp"]
	if mcp.Status != models.StatusNotApplicable {
		t.Errorf("mcp status = %s, want not_applicable for blog_content", mcp.Status)
	}
	if mcp.Applicability == nil || mcp.Applicability.IncludedInCategoryMath {
		t.Errorf("not_applicable indicator must be excluded from category math")
	}
	actions := report.Categories[models.ScoreCategoryActions]
	if _, present := actions.IndicatorScores["mcp"]; present {
		t.Errorf("mcp score leaked into actions category math")
	}
}

func TestAggregateOverallMatchesRecompute(t *testing.T) {
	site := "https://example.com"
	pageResults := map[string][]models.ScannerResult{
		site: {
			result("robots_txt", 1.0, models.StatusPass),
			result("llms_txt", 0.5, models.StatusWarn),
			result("json_ld", 0.9, models.StatusPass),
			result("mcp", 0.0, models.StatusFail),
		},
	}

	report := Aggregate(site, pageResults, "")
	recomputed := report.RecomputeOverall()
	if report.Overall != recomputed {
		t.Errorf("stored overall %+v does not round-trip through RecomputeOverall %+v", report.Overall, recomputed)
	}
	if report.Overall.Score100 < 0 || report.Overall.Score100 > 100 {
		t.Errorf("overall score out of range: %d", report.Overall.Score100)
	}
	if report.Summary == "" {
		t.Errorf("summary missing")
	}
}

func TestAggregateNormalizesLegacyScores(t *testing.T) {
	site := "https://example.com"
	pageResults := map[string][]models.ScannerResult{
		site: {result("json_ld", 9.0, models.StatusPass)},
	}

	report := Aggregate(site, pageResults, "")
	if got := report.Indicators["json_ld"].Score; got != 0.9 {
		t.Errorf("legacy 0-10 score not normalized: %v", got)
	}
}
