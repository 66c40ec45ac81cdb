package profile

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/arkologystudio/lumen/pkg/models"
)

// pathHints maps URL path fragments to the profile they corroborate.
var pathHints = map[string]string{
	"/product": models.ProfileEcommerce,
	"/shop":    models.ProfileEcommerce,
	"/cart":    models.ProfileEcommerce,
	"/store":   models.ProfileEcommerce,
	"/blog":    models.ProfileBlogContent,
	"/post":    models.ProfileBlogContent,
	"/article": models.ProfileBlogContent,
	"/news":    models.ProfileBlogContent,
	"/pricing": models.ProfileSaaS,
	"/docs":    models.ProfileSaaS,
	"/api":     models.ProfileSaaS,
	"/signup":  models.ProfileSaaS,
}

// DetectProfile classifies the site. A declared profile short-circuits the
// heuristics with full confidence; otherwise signals are drawn from scanner
// evidence and page paths, and confidence grows with corroboration.
func DetectProfile(indicators []models.ScannerResult, pageURLs []string, declaredProfile string) models.SiteProfileResult {
	if declaredProfile != "" {
		return models.SiteProfileResult{
			Profile:    declaredProfile,
			Confidence: 1.0,
			Method:     models.ProfileMethodDeclared,
			Signals:    []string{"declared by site owner"},
		}
	}

	votes := make(map[string]int)
	var signals []string
	vote := func(profile, signal string) {
		votes[profile]++
		signals = append(signals, signal)
	}

	for _, ind := range indicators {
		if ind.IndicatorName != "json_ld" || ind.Evidence == nil {
			continue
		}
		for _, t := range evidenceTypes(ind.Evidence) {
			switch t {
			case "Product", "Offer", "ProductGroup":
				vote(models.ProfileEcommerce, "json_ld:"+t)
			case "Article", "BlogPosting", "NewsArticle":
				vote(models.ProfileBlogContent, "json_ld:"+t)
			case "SoftwareApplication", "WebApplication":
				vote(models.ProfileSaaS, "json_ld:"+t)
			}
		}
	}

	for _, raw := range pageURLs {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		path := strings.ToLower(u.Path)
		for hint, profile := range pathHints {
			if strings.HasPrefix(path, hint) {
				vote(profile, "path:"+hint)
				break
			}
		}
	}

	best := models.ProfileUnknown
	bestVotes := 0
	for _, candidate := range []string{models.ProfileEcommerce, models.ProfileBlogContent, models.ProfileSaaS} {
		if votes[candidate] > bestVotes {
			best = candidate
			bestVotes = votes[candidate]
		}
	}

	if bestVotes == 0 {
		return models.SiteProfileResult{
			Profile: models.ProfileUnknown,
			Method:  models.ProfileMethodHeuristic,
		}
	}

	confidence := float64(bestVotes) / 3
	if confidence > 1 {
		confidence = 1
	}

	return models.SiteProfileResult{
		Profile:    best,
		Confidence: confidence,
		Method:     models.ProfileMethodHeuristic,
		Signals:    signals,
	}
}

func evidenceTypes(evidence map[string]interface{}) []string {
	var out []string
	switch v := evidence["types"].(type) {
	case []string:
		out = v
	case []interface{}:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	}
	return out
}
