package scanners

import (
	"context"
	"regexp"
	"strings"

	"github.com/arkologystudio/lumen/pkg/models"
)

// llms.txt structure: one H1 title, an optional blockquote summary, then H2
// sections holding markdown link lists ("- [title](url): description").
// See https://llmstxt.org.
var llmsLinkLineRe = regexp.MustCompile(`^-\s+\[[^\]]+\]\([^)\s]+\)(:\s*.*)?$`)

type LLMSTxtScanner struct{}

func NewLLMSTxtScanner() *LLMSTxtScanner { return &LLMSTxtScanner{} }

func (s *LLMSTxtScanner) Name() string     { return "llms_txt" }
func (s *LLMSTxtScanner) Category() string { return models.CategoryStandards }
func (s *LLMSTxtScanner) Weight() float64  { return 2.0 }
func (s *LLMSTxtScanner) Scope() Scope     { return ScopeSite }

func (s *LLMSTxtScanner) Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error) {
	res := newResult(s)

	fetched, checkedURL := fetchPath(ctx, sc, "/llms.txt")
	res.SetEvidence(models.EvidenceCheckedURL, checkedURL)

	if fetched == nil || fetched.Error != "" || fetched.StatusCode != 200 {
		res.Status = models.StatusFail
		res.Score = 0
		res.Message = "No llms.txt file found"
		res.Recommendation = "Add an llms.txt file at the site root to give language models a curated map of your content"
		res.SetEvidence(models.EvidenceFound, false)
		return res, nil
	}

	res.SetEvidence(models.EvidenceFound, true)
	parsed := parseLLMSTxt(fetched.HTML)
	res.SetEvidence("title", parsed.Title)
	res.SetEvidence("has_summary", parsed.HasSummary)
	res.SetEvidence("section_count", parsed.SectionCount)
	res.SetEvidence("link_count", parsed.LinkCount)
	res.SetEvidence("validation_issues", parsed.Issues)
	res.SetEvidence(models.EvidenceIsValid, parsed.Valid)

	switch {
	case parsed.Valid:
		res.Status = models.StatusPass
		res.Score = 1.0
		res.Message = "Valid llms.txt with title and structured content"
	case parsed.Title != "":
		res.Status = models.StatusWarn
		res.Score = 0.5
		res.Message = "llms.txt found but structure is incomplete"
		res.Recommendation = "Add a blockquote summary or H2 sections with markdown links"
	default:
		res.Status = models.StatusWarn
		res.Score = 0.5
		res.Message = "llms.txt found but missing required H1 title"
		res.Recommendation = "Start the file with a single H1 line naming the project"
	}

	return res, nil
}

type llmsTxtDocument struct {
	Title        string
	HasSummary   bool
	SectionCount int
	LinkCount    int
	Issues       []string
	Valid        bool
}

func parseLLMSTxt(content string) *llmsTxtDocument {
	doc := &llmsTxtDocument{}
	sectionHasLinks := false

	for _, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimSpace(rawLine)
		switch {
		case strings.HasPrefix(line, "# ") && doc.Title == "":
			doc.Title = strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "> "):
			if doc.SectionCount == 0 {
				doc.HasSummary = true
			}
		case strings.HasPrefix(line, "## "):
			doc.SectionCount++
		case strings.HasPrefix(line, "- "):
			if llmsLinkLineRe.MatchString(line) {
				doc.LinkCount++
				if doc.SectionCount > 0 {
					sectionHasLinks = true
				}
			} else {
				// A malformed link line downgrades quality, not validity.
				doc.Issues = append(doc.Issues, "malformed link line: "+truncateLine(line))
			}
		}
	}

	if doc.Title == "" {
		doc.Issues = append(doc.Issues, "missing required H1 title")
	}
	if !doc.HasSummary && !(doc.SectionCount > 0 && sectionHasLinks) {
		doc.Issues = append(doc.Issues, "add a blockquote summary or at least one H2 section with markdown links")
	}

	doc.Valid = doc.Title != "" && (doc.HasSummary || (doc.SectionCount > 0 && sectionHasLinks))
	return doc
}

func truncateLine(line string) string {
	if len(line) > 80 {
		return line[:77] + "..."
	}
	return line
}
