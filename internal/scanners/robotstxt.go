package scanners

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arkologystudio/lumen/pkg/models"
)

// AI crawler user agents whose robots.txt treatment drives the access-intent
// classification.
var aiUserAgents = []string{"gptbot", "ccbot", "claude-web", "anthropic-ai"}

const (
	AccessIntentAllow   = "allow"
	AccessIntentPartial = "partial"
	AccessIntentBlock   = "block"
)

// RobotsTxtScanner scores robots.txt on binary presence. The access-intent
// classification derived from AI-specific blocks is evidence only and never
// feeds the score.
type RobotsTxtScanner struct{}

func NewRobotsTxtScanner() *RobotsTxtScanner { return &RobotsTxtScanner{} }

func (s *RobotsTxtScanner) Name() string     { return "robots_txt" }
func (s *RobotsTxtScanner) Category() string { return models.CategoryStandards }
func (s *RobotsTxtScanner) Weight() float64  { return 1.0 }
func (s *RobotsTxtScanner) Scope() Scope     { return ScopeSite }

func (s *RobotsTxtScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	res := newResult(s)

	robots := sc.Robots
	if robots == nil {
		fetched, checkedURL := fetchPath(ctx, sc, "/robots.txt")
		robots = &models.RobotsTxt{CheckedURL: checkedURL}
		if fetched != nil && fetched.Error == "" && fetched.StatusCode == 200 {
			robots.Found = true
			robots.Content = fetched.HTML
		}
	}
	res.SetEvidence(models.EvidenceCheckedURL, robots.CheckedURL)
	res.SetEvidence(models.EvidenceFound, robots.Found)

	if metaDirectives := pageRobotsMeta(sc.HTML); len(metaDirectives) > 0 {
		res.SetEvidence("page_meta_robots", metaDirectives)
	}

	if !robots.Found {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = "No robots.txt found"
		res.Recommendation = "Add a robots.txt file so crawlers know what they may access"
		res.SetEvidence("access_intent", AccessIntentAllow)
		return res, nil
	}

	intent, blockedAgents := classifyAccessIntent(robots.Content)
	res.SetEvidence("access_intent", intent)
	if len(blockedAgents) > 0 {
		res.SetEvidence("blocked_ai_agents", blockedAgents)
	}
	res.SetEvidence(models.EvidenceIsValid, true)

	res.Status = models.StatusPass
	res.Score = 1.0
	res.Message = "robots.txt present"
	if intent == AccessIntentBlock {
		res.Message = "robots.txt present but blocks all known AI crawlers"
		res.Recommendation = "Consider allowing AI crawlers you want your content surfaced by"
	}
	return res, nil
}

// classifyAccessIntent inspects per-agent rules and noai directives.
// All tracked AI agents disallowed -> block; some -> partial; none -> allow.
func classifyAccessIntent(content string) (string, []string) {
	var blocked []string
	var currentAgents []string
	lines := strings.Split(content, "\n")
	hasNoAI := false
	// A user-agent line after directive lines opens a new rule group;
	// only consecutive user-agent lines share one group.
	afterRules := false

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "user-agent:"):
			if afterRules {
				currentAgents = nil
				afterRules = false
			}
			agent := strings.TrimSpace(lower[len("user-agent:"):])
			currentAgents = append(currentAgents, agent)
		case lower == "":
			currentAgents = nil
			afterRules = false
		case strings.HasPrefix(lower, "disallow:"):
			afterRules = true
			path := strings.TrimSpace(lower[len("disallow:"):])
			if path == "/" {
				for _, agent := range currentAgents {
					for _, ai := range aiUserAgents {
						if agent == ai && !containsString(blocked, ai) {
							blocked = append(blocked, ai)
						}
					}
				}
			}
		case strings.Contains(lower, "noai") || strings.Contains(lower, "noimageai"):
			hasNoAI = true
			afterRules = true
		default:
			afterRules = true
		}
	}

	switch {
	case hasNoAI || len(blocked) == len(aiUserAgents):
		return AccessIntentBlock, blocked
	case len(blocked) > 0:
		return AccessIntentPartial, blocked
	default:
		return AccessIntentAllow, nil
	}
}

func pageRobotsMeta(html string) []string {
	if html == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var directives []string
	doc.Find(`meta[name="robots"], meta[name="googlebot"]`).Each(func(_ int, sel *goquery.Selection) {
		if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
			directives = append(directives, strings.TrimSpace(content))
		}
	})
	return directives
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
