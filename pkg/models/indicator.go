package models

const (
	StatusPass          = "pass"
	StatusWarn          = "warn"
	StatusFail          = "fail"
	StatusNotApplicable = "not_applicable"

	CategoryStandards      = "standards"
	CategorySEO            = "seo"
	CategoryStructuredData = "structured_data"

	ApplicabilityRequired      = "required"
	ApplicabilityOptional      = "optional"
	ApplicabilityNotApplicable = "not_applicable"
)

// Applicability records whether an indicator's score counts toward category
// math for the detected site profile. Status not_applicable always implies
// IncludedInCategoryMath == false.
type Applicability struct {
	Status                 string `json:"status"`
	Reason                 string `json:"reason,omitempty"`
	IncludedInCategoryMath bool   `json:"included_in_category_math"`
}

// ScannerResult is one indicator: an atomic named check with its own score,
// status, and evidence. Scores are always normalized to [0,1] before storage.
type ScannerResult struct {
	IndicatorName  string                 `json:"indicator_name"`
	Category       string                 `json:"category"`
	Weight         float64                `json:"weight"`
	Status         string                 `json:"status"`
	Score          float64                `json:"score"`
	Message        string                 `json:"message"`
	Recommendation string                 `json:"recommendation,omitempty"`
	Evidence       map[string]interface{} `json:"evidence,omitempty"`
	Applicability  *Applicability         `json:"applicability,omitempty"`
}

// Standardized evidence keys shared by every scanner.
const (
	EvidenceFound      = "found"
	EvidenceIsValid    = "is_valid"
	EvidenceCheckedURL = "checked_url"
)

// NormalizeScore clamps s into [0,1]. Values on the legacy 0-10 scale
// (anything above 1) are divided by 10 first.
func NormalizeScore(s float64) float64 {
	if s > 1 {
		s = s / 10
	}
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Normalize enforces the score invariant in place and returns the result for
// chaining.
func (r *ScannerResult) Normalize() *ScannerResult {
	r.Score = NormalizeScore(r.Score)
	return r
}

// SetEvidence lazily initializes the evidence map.
func (r *ScannerResult) SetEvidence(key string, value interface{}) {
	if r.Evidence == nil {
		r.Evidence = make(map[string]interface{})
	}
	r.Evidence[key] = value
}
