package scanners

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/arkologystudio/lumen/pkg/models"
)

// MCPScanner checks /.well-known/mcp.json, the manifest action-capable sites
// publish for Model Context Protocol clients.
type MCPScanner struct{}

func NewMCPScanner() *MCPScanner { return &MCPScanner{} }

func (s *MCPScanner) Name() string     { return "mcp" }
func (s *MCPScanner) Category() string { return models.CategoryStandards }
func (s *MCPScanner) Weight() float64  { return 2.5 }
func (s *MCPScanner) Scope() Scope     { return ScopeSite }

func (s *MCPScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	res := newResult(s)

	fetched, checkedURL := fetchPath(ctx, sc, "/.well-known/mcp.json")
	res.SetEvidence(models.EvidenceCheckedURL, checkedURL)

	if fetched == nil || fetched.Error != "" || fetched.StatusCode != 200 {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = "No MCP manifest found"
		res.Recommendation = "Publish /.well-known/mcp.json if your site exposes actions to agents"
		res.SetEvidence(models.EvidenceFound, false)
		return res, nil
	}
	res.SetEvidence(models.EvidenceFound, true)

	var manifest map[string]interface{}
	if err := json.Unmarshal([]byte(fetched.HTML), &manifest); err != nil {
		res.Status = models.StatusWarn
		res.Score = 0.5
		res.Message = "MCP manifest is not valid JSON"
		res.SetEvidence(models.EvidenceIsValid, false)
		res.SetEvidence("issues", []string{"invalid JSON: " + err.Error()})
		return res, nil
	}

	issues := validateMCPManifest(manifest)
	res.SetEvidence("issues", issues)
	res.SetEvidence(models.EvidenceIsValid, len(issues) == 0)
	if actions, ok := manifest["actions"].([]interface{}); ok {
		res.SetEvidence("action_count", len(actions))
	}

	if len(issues) > 0 {
		res.Status = models.StatusWarn
		res.Score = 0.5
		res.Message = "MCP manifest present but has validation issues"
		res.Recommendation = "Resolve the manifest issues listed in the evidence"
		return res, nil
	}

	res.Status = models.StatusPass
	res.Score = 1.0
	res.Message = "Valid MCP manifest"
	return res, nil
}

func validateMCPManifest(manifest map[string]interface{}) []string {
	var issues []string

	switch {
	case !isNonEmptyString(manifest["version"]):
		issues = append(issues, "missing version")
	default:
		if _, err := semver.NewVersion(manifest["version"].(string)); err != nil {
			issues = append(issues, "version is not a valid semantic version")
		}
	}

	if _, ok := manifest["capabilities"].([]interface{}); !ok {
		issues = append(issues, "capabilities must be an array")
	}

	server, ok := manifest["server"].(map[string]interface{})
	if !ok || !isNonEmptyString(server["url"]) {
		issues = append(issues, "missing server.url")
	}

	if actions, ok := manifest["actions"].([]interface{}); ok {
		for i, raw := range actions {
			action, ok := raw.(map[string]interface{})
			if !ok {
				issues = append(issues, fmt.Sprintf("actions[%d] is not an object", i))
				continue
			}
			for _, field := range []string{"name", "description"} {
				if !isNonEmptyString(action[field]) {
					issues = append(issues, fmt.Sprintf("actions[%d] missing %s", i, field))
				}
			}
			if _, ok := action["parameters"]; !ok {
				issues = append(issues, fmt.Sprintf("actions[%d] missing parameters", i))
			}
		}
	}

	return issues
}
