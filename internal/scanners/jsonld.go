package scanners

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arkologystudio/lumen/pkg/models"
)

// Schema.org types that materially help agents interpret a page. Each
// distinct one found adds a bonus, capped below.
var aiRelevantTypes = []string{"FAQPage", "HowTo", "QAPage", "Product", "Article", "BlogPosting", "Organization", "WebSite"}

const (
	jsonldBaseScore       = 0.5
	jsonldAIBonusPerType  = 0.1
	jsonldAIBonusCap      = 0.3
	jsonldIssuePenalty    = 0.05
	jsonldPassThreshold   = 0.8
	jsonldWarnThreshold   = 0.3
	jsonldMultiBlockBonus = 0.1
)

type JSONLDScanner struct{}

func NewJSONLDScanner() *JSONLDScanner { return &JSONLDScanner{} }

func (s *JSONLDScanner) Name() string     { return "json_ld" }
func (s *JSONLDScanner) Category() string { return models.CategoryStructuredData }
func (s *JSONLDScanner) Weight() float64  { return 2.0 }
func (s *JSONLDScanner) Scope() Scope     { return ScopePage }

func (s *JSONLDScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	res := newResult(s)
	res.SetEvidence(models.EvidenceCheckedURL, sc.PageURL)

	blocks, parseIssues := extractJSONLDBlocks(sc.HTML)
	res.SetEvidence("block_count", len(blocks))
	res.SetEvidence(models.EvidenceFound, len(blocks) > 0)

	if len(blocks) == 0 {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = "No JSON-LD structured data found"
		res.Recommendation = "Embed schema.org JSON-LD describing your organization and content"
		if len(parseIssues) > 0 {
			res.SetEvidence("issues", parseIssues)
		}
		return res, nil
	}

	types := make(map[string]bool)
	var issues []string
	issues = append(issues, parseIssues...)
	for _, block := range blocks {
		collectTypes(block, types)
		issues = append(issues, validateSchemaFields(block)...)
	}

	hasOrganization := types["Organization"]
	hasWebSite := types["WebSite"]
	hasWebPage := types["WebPage"] || types["BreadcrumbList"]
	hasContent := types["Product"] || types["Article"] || types["BlogPosting"]

	score := jsonldBaseScore
	if hasOrganization || hasWebSite {
		score += 0.3
	}
	if hasWebPage {
		score += 0.1
	}
	if hasContent {
		score += 0.2
	}

	aiBonus := 0.0
	for _, t := range aiRelevantTypes {
		if types[t] {
			aiBonus += jsonldAIBonusPerType
		}
	}
	if aiBonus > jsonldAIBonusCap {
		aiBonus = jsonldAIBonusCap
	}
	score += aiBonus

	if len(blocks) > 1 {
		score += jsonldMultiBlockBonus
	}
	score -= float64(len(issues)) * jsonldIssuePenalty
	score = models.NormalizeScore(score)

	typeList := make([]string, 0, len(types))
	for t := range types {
		typeList = append(typeList, t)
	}
	res.SetEvidence("types", typeList)
	res.SetEvidence("hasOrganization", hasOrganization)
	res.SetEvidence("hasWebSite", hasWebSite)
	res.SetEvidence("hasProduct", types["Product"])
	res.SetEvidence("hasArticle", types["Article"] || types["BlogPosting"])
	res.SetEvidence("issues", issues)
	res.SetEvidence(models.EvidenceIsValid, len(issues) == 0)

	res.Score = score
	switch {
	case score >= jsonldPassThreshold:
		res.Status = models.StatusPass
		res.Message = "Rich JSON-LD structured data found"
	case score >= jsonldWarnThreshold:
		res.Status = models.StatusWarn
		res.Message = "JSON-LD present but coverage is thin"
		res.Recommendation = "Add Organization or WebSite schema plus content-type schema for key pages"
	default:
		res.Status = models.StatusFail
		res.Message = "JSON-LD present but unusable"
		res.Recommendation = "Fix the structured data issues listed in the evidence"
	}
	return res, nil
}

func extractJSONLDBlocks(html string) ([]interface{}, []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, []string{"page HTML could not be parsed"}
	}

	var blocks []interface{}
	var issues []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			issues = append(issues, "invalid JSON-LD block: "+err.Error())
			return
		}
		blocks = append(blocks, parsed)
	})
	return blocks, issues
}

// collectTypes walks nested objects, arrays and @graph containers gathering
// every @type value.
func collectTypes(node interface{}, types map[string]bool) {
	switch v := node.(type) {
	case map[string]interface{}:
		switch t := v["@type"].(type) {
		case string:
			types[t] = true
		case []interface{}:
			for _, item := range t {
				if s, ok := item.(string); ok {
					types[s] = true
				}
			}
		}
		for _, child := range v {
			collectTypes(child, types)
		}
	case []interface{}:
		for _, item := range v {
			collectTypes(item, types)
		}
	}
}

// validateSchemaFields checks the required sub-fields of types we score:
// Organization needs name+url, Article/BlogPosting need
// headline+author+datePublished.
func validateSchemaFields(node interface{}) []string {
	var issues []string
	walkObjects(node, func(obj map[string]interface{}) {
		switch typeOf(obj) {
		case "Organization":
			for _, field := range []string{"name", "url"} {
				if !isNonEmptyString(obj[field]) {
					issues = append(issues, "Organization missing "+field)
				}
			}
		case "Article", "BlogPosting":
			for _, field := range []string{"headline", "author", "datePublished"} {
				if v, ok := obj[field]; !ok || v == nil {
					issues = append(issues, "Article missing "+field)
				}
			}
		}
	})
	return issues
}

func walkObjects(node interface{}, visit func(map[string]interface{})) {
	switch v := node.(type) {
	case map[string]interface{}:
		visit(v)
		for _, child := range v {
			walkObjects(child, visit)
		}
	case []interface{}:
		for _, item := range v {
			walkObjects(item, visit)
		}
	}
}

func typeOf(obj map[string]interface{}) string {
	if t, ok := obj["@type"].(string); ok {
		return t
	}
	return ""
}
