package scanners

import (
	"context"
	"testing"

	"github.com/arkologystudio/lumen/pkg/models"
)

// stubFetch serves canned bodies keyed by URL; anything else 404s.
func stubFetch(bodies map[string]string) FetchFunc {
	return func(ctx context.Context, url string) *models.FetchResult {
		if body, ok := bodies[url]; ok {
			return &models.FetchResult{URL: url, FinalURL: url, StatusCode: 200, HTML: body}
		}
		return &models.FetchResult{URL: url, FinalURL: url, StatusCode: 404}
	}
}

func siteContext(bodies map[string]string) *Context {
	return &Context{
		SiteURL: "https://example.com",
		PageURL: "https://example.com",
		Fetch:   stubFetch(bodies),
	}
}

func TestLLMSTxtScannerAbsent(t *testing.T) {
	res, err := NewLLMSTxtScanner().Scan(context.Background(), siteContext(nil))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusFail || res.Score != 0 {
		t.Errorf("absent llms.txt: status=%s score=%v, want fail/0", res.Status, res.Score)
	}
	if found, _ := res.Evidence[models.EvidenceFound].(bool); found {
		t.Errorf("evidence found = true, want false")
	}
}

func TestLLMSTxtScannerTitleOnly(t *testing.T) {
	sc := siteContext(map[string]string{"https://example.com/llms.txt": "# My Project\n"})
	res, err := NewLLMSTxtScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusWarn || res.Score != 0.5 {
		t.Errorf("title-only llms.txt: status=%s score=%v, want warn/0.5", res.Status, res.Score)
	}
	if valid, _ := res.Evidence[models.EvidenceIsValid].(bool); valid {
		t.Errorf("title-only file must not be marked valid")
	}
	issues, _ := res.Evidence["validation_issues"].([]string)
	foundIssue := false
	for _, issue := range issues {
		if issue == "add a blockquote summary or at least one H2 section with markdown links" {
			foundIssue = true
		}
	}
	if !foundIssue {
		t.Errorf("missing structural issue in evidence, got %v", issues)
	}
}

func TestLLMSTxtScannerValid(t *testing.T) {
	content := "# My Project\n\n> A tidy summary of the project.\n\n## Docs\n\n- [Guide](https://example.com/guide): getting started\n"
	sc := siteContext(map[string]string{"https://example.com/llms.txt": content})
	res, err := NewLLMSTxtScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusPass || res.Score != 1.0 {
		t.Errorf("valid llms.txt: status=%s score=%v, want pass/1.0", res.Status, res.Score)
	}
}

func TestRobotsTxtScannerAbsent(t *testing.T) {
	sc := siteContext(nil)
	sc.Robots = &models.RobotsTxt{Found: false, CheckedURL: "https://example.com/robots.txt"}

	res, err := NewRobotsTxtScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusFail || res.Score != 0 {
		t.Errorf("absent robots.txt: status=%s score=%v, want fail/0", res.Status, res.Score)
	}
	if found, _ := res.Evidence[models.EvidenceFound].(bool); found {
		t.Errorf("evidence found = true, want false")
	}
}

func TestRobotsTxtScannerBlockIsEvidenceOnly(t *testing.T) {
	content := "User-agent: GPTBot\nDisallow: /\n\nUser-agent: CCBot\nDisallow: /\n\nUser-agent: Claude-Web\nDisallow: /\n\nUser-agent: anthropic-ai\nDisallow: /\n"
	sc := siteContext(nil)
	sc.Robots = &models.RobotsTxt{Found: true, Content: content, CheckedURL: "https://example.com/robots.txt"}

	res, err := NewRobotsTxtScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// Presence scoring is binary; the AI-block classification never lowers it.
	if res.Status != models.StatusPass || res.Score != 1.0 {
		t.Errorf("blocking robots.txt: status=%s score=%v, want pass/1.0", res.Status, res.Score)
	}
	if intent, _ := res.Evidence["access_intent"].(string); intent != AccessIntentBlock {
		t.Errorf("access_intent = %v, want block", res.Evidence["access_intent"])
	}
}

func TestRobotsTxtScannerPartialBlock(t *testing.T) {
	content := "User-agent: GPTBot\nDisallow: /\n\nUser-agent: *\nAllow: /\n"
	intent, blocked := classifyAccessIntent(content)
	if intent != AccessIntentPartial {
		t.Errorf("intent = %s, want partial", intent)
	}
	if len(blocked) != 1 || blocked[0] != "gptbot" {
		t.Errorf("blocked = %v, want [gptbot]", blocked)
	}
}

func TestRobotsTxtAgentGroupEndsAtDirectives(t *testing.T) {
	// GPTBot's group closes at its Disallow line even without a blank
	// line, so BadBot's full block must not bleed back onto it.
	content := "User-agent: GPTBot\nDisallow: /private\nUser-agent: BadBot\nDisallow: /\n"
	intent, blocked := classifyAccessIntent(content)
	if intent != AccessIntentAllow {
		t.Errorf("intent = %s, want allow", intent)
	}
	if len(blocked) != 0 {
		t.Errorf("blocked = %v, want none", blocked)
	}

	// Consecutive user-agent lines still share one group.
	grouped := "User-agent: GPTBot\nUser-agent: CCBot\nDisallow: /\n"
	intent, blocked = classifyAccessIntent(grouped)
	if intent != AccessIntentPartial {
		t.Errorf("grouped intent = %s, want partial", intent)
	}
	if len(blocked) != 2 {
		t.Errorf("grouped blocked = %v, want gptbot and ccbot", blocked)
	}
}

func TestJSONLDScannerOrganizationBlock(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Organization","name":"Example Co","url":"https://example.com"}
</script></head><body></body></html>`
	sc := siteContext(nil)
	sc.HTML = html

	res, err := NewJSONLDScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusPass {
		t.Errorf("status = %s, want pass", res.Status)
	}
	if res.Score < 0.8 {
		t.Errorf("score = %v, want >= 0.8", res.Score)
	}
	if hasOrg, _ := res.Evidence["hasOrganization"].(bool); !hasOrg {
		t.Errorf("hasOrganization = false, want true")
	}
}

func TestJSONLDScannerNoBlocks(t *testing.T) {
	sc := siteContext(nil)
	sc.HTML = "<html><head><title>Plain</title></head><body></body></html>"

	res, err := NewJSONLDScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusFail || res.Score != 0 {
		t.Errorf("no JSON-LD: status=%s score=%v, want fail/0", res.Status, res.Score)
	}
}

func TestAIAgentJSONScannerRejectsBadVersion(t *testing.T) {
	manifest := `{"name":"Example","description":"Agent endpoint","version":"not-a-version"}`
	sc := siteContext(map[string]string{"https://example.com/.well-known/ai-agent.json": manifest})

	res, err := NewAIAgentJSONScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusWarn {
		t.Errorf("status = %s, want warn for invalid semver", res.Status)
	}
	if valid, _ := res.Evidence[models.EvidenceIsValid].(bool); valid {
		t.Errorf("manifest with bad version must not be valid")
	}
}

func TestAgentJSONScannerAdvancedFeaturesRaiseScore(t *testing.T) {
	manifest := `{"name":"Example","description":"Agent endpoint","capabilities":["search"],"authentication":{"type":"none"},"privacy":{"policy":"https://example.com/privacy"}}`
	sc := siteContext(map[string]string{"https://example.com/agent.json": manifest})

	res, err := NewAgentJSONScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusPass || res.Score != 1.0 {
		t.Errorf("manifest with 3 advanced features: status=%s score=%v, want pass/1.0", res.Status, res.Score)
	}
}

func TestMCPScannerValidManifest(t *testing.T) {
	manifest := `{
		"version": "1.2.0",
		"capabilities": ["actions"],
		"server": {"url": "https://example.com/mcp"},
		"actions": [{"name": "search", "description": "Search the catalog", "parameters": {"q": "string"}}]
	}`
	sc := siteContext(map[string]string{"https://example.com/.well-known/mcp.json": manifest})

	res, err := NewMCPScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusPass || res.Score != 1.0 {
		t.Errorf("valid mcp manifest: status=%s score=%v, want pass/1.0", res.Status, res.Score)
	}
}

func TestMCPScannerInvalidJSONWarns(t *testing.T) {
	sc := siteContext(map[string]string{"https://example.com/.well-known/mcp.json": "{not json"})

	res, err := NewMCPScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusWarn || res.Score != 0.5 {
		t.Errorf("invalid mcp json: status=%s score=%v, want warn/0.5", res.Status, res.Score)
	}
}

func TestCanonicalScannerMissing(t *testing.T) {
	sc := siteContext(nil)
	sc.HTML = "<html><head><title>No canonical</title></head><body></body></html>"

	res, err := NewCanonicalScanner().Scan(context.Background(), sc)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != models.StatusWarn || res.Score != 0.3 {
		t.Errorf("missing canonical: status=%s score=%v, want warn/0.3", res.Status, res.Score)
	}
}

func TestRegistryIsolatesPanickingScanner(t *testing.T) {
	registry := NewRegistry(nil, nil)
	registry.Register(&panicScanner{})

	sc := siteContext(nil)
	sc.HTML = "<html><head></head><body></body></html>"
	results := registry.RunAll(context.Background(), sc)

	var panicked *models.ScannerResult
	for i := range results {
		if results[i].IndicatorName == "boom" {
			panicked = &results[i]
		}
	}
	if panicked == nil {
		t.Fatalf("panicking scanner missing from batch results")
	}
	if panicked.Status != models.StatusFail || panicked.Score != 0 {
		t.Errorf("panicking scanner degraded to status=%s score=%v, want fail/0", panicked.Status, panicked.Score)
	}
	if len(results) < 9 {
		t.Errorf("panic aborted the batch: only %d results", len(results))
	}
}

type panicScanner struct{}

func (p *panicScanner) Name() string     { return "boom" }
func (p *panicScanner) Category() string { return models.CategoryStandards }
func (p *panicScanner) Weight() float64  { return 1.0 }
func (p *panicScanner) Scope() Scope     { return ScopePage }
func (p *panicScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	panic("boom")
}
