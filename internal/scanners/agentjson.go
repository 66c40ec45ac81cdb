package scanners

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/arkologystudio/lumen/pkg/models"
)

var agentAdvancedFeatures = []string{"capabilities", "authentication", "privacy", "rateLimit"}

// AgentJSONScanner checks /agent.json, the simple agent manifest. The
// well-known variant below shares the validation logic but additionally
// requires a version field.
type AgentJSONScanner struct {
	name           string
	weight         float64
	path           string
	requireVersion bool
}

func NewAgentJSONScanner() *AgentJSONScanner {
	return &AgentJSONScanner{name: "agent_json", weight: 1.5, path: "/agent.json"}
}

func NewAIAgentJSONScanner() *AgentJSONScanner {
	return &AgentJSONScanner{
		name:           "ai_agent_json",
		weight:         2.0,
		path:           "/.well-known/ai-agent.json",
		requireVersion: true,
	}
}

func (s *AgentJSONScanner) Name() string     { return s.name }
func (s *AgentJSONScanner) Category() string { return models.CategoryStandards }
func (s *AgentJSONScanner) Weight() float64  { return s.weight }
func (s *AgentJSONScanner) Scope() Scope     { return ScopeSite }

func (s *AgentJSONScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	res := newResult(s)

	fetched, checkedURL := fetchPath(ctx, sc, s.path)
	res.SetEvidence(models.EvidenceCheckedURL, checkedURL)

	if fetched == nil || fetched.Error != "" || fetched.StatusCode != 200 {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = fmt.Sprintf("No manifest found at %s", s.path)
		res.Recommendation = fmt.Sprintf("Publish %s describing your site's agent-facing capabilities", s.path)
		res.SetEvidence(models.EvidenceFound, false)
		return res, nil
	}
	res.SetEvidence(models.EvidenceFound, true)

	var manifest map[string]interface{}
	if err := json.Unmarshal([]byte(fetched.HTML), &manifest); err != nil {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = "Manifest is not valid JSON"
		res.Recommendation = "Fix the JSON syntax so agents can parse the manifest"
		res.SetEvidence(models.EvidenceIsValid, false)
		res.SetEvidence("parse_error", err.Error())
		return res, nil
	}

	issues := s.validateRequired(manifest)
	advanced := countAdvancedFeatures(manifest)
	res.SetEvidence("advanced_features", advanced)
	res.SetEvidence("validation_issues", issues)
	res.SetEvidence(models.EvidenceIsValid, len(issues) == 0)

	if len(issues) > 0 {
		res.Status = models.StatusWarn
		res.Score = 0.5
		if advanced >= 2 {
			res.Score = 0.6
		}
		res.Message = "Manifest found but required fields are missing or malformed"
		res.Recommendation = "Provide " + strings.Join(s.requiredFields(), ", ") + " as non-empty fields"
		return res, nil
	}

	res.Status = models.StatusPass
	res.Score = 0.8
	if advanced >= 3 {
		res.Score = 1.0
	}
	res.Message = "Valid agent manifest"
	return res, nil
}

func (s *AgentJSONScanner) requiredFields() []string {
	fields := []string{"name", "description"}
	if s.requireVersion {
		fields = append(fields, "version")
	}
	return fields
}

func (s *AgentJSONScanner) validateRequired(manifest map[string]interface{}) []string {
	var issues []string
	for _, field := range []string{"name", "description"} {
		if !isNonEmptyString(manifest[field]) {
			issues = append(issues, "missing or empty field: "+field)
		}
	}
	if s.requireVersion {
		switch {
		case !isNonEmptyString(manifest["version"]):
			issues = append(issues, "missing or empty field: version")
		default:
			if _, err := semver.NewVersion(manifest["version"].(string)); err != nil {
				issues = append(issues, "version is not a valid semantic version")
			}
		}
	}
	return issues
}

func countAdvancedFeatures(manifest map[string]interface{}) int {
	count := 0
	for _, feature := range agentAdvancedFeatures {
		if v, ok := manifest[feature]; ok && v != nil {
			count++
		}
	}
	return count
}

func isNonEmptyString(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}
