package profile

import "github.com/arkologystudio/lumen/pkg/models"

// matrixKey addresses one (indicator, profile) rule.
type matrixKey struct {
	Indicator string
	Profile   string
}

type matrixRule struct {
	Status  string
	Reason  string
	Counted bool
}

// applicabilityMatrix is the single place business policy about "what matters
// for which site type" lives. Keep rules here, never inside scanners.
var applicabilityMatrix = map[matrixKey]matrixRule{
	// Action manifests only matter where transactional actions are expected.
	{"mcp", models.ProfileEcommerce}:   {models.ApplicabilityRequired, "action-capable site", true},
	{"mcp", models.ProfileSaaS}:        {models.ApplicabilityRequired, "action-capable site", true},
	{"mcp", models.ProfileBlogContent}: {models.ApplicabilityNotApplicable, "no transactional actions expected", false},

	{"agent_json", models.ProfileEcommerce}:   {models.ApplicabilityRequired, "action-capable site", true},
	{"agent_json", models.ProfileSaaS}:        {models.ApplicabilityRequired, "action-capable site", true},
	{"agent_json", models.ProfileBlogContent}: {models.ApplicabilityNotApplicable, "no transactional actions expected", false},

	{"ai_agent_json", models.ProfileEcommerce}:   {models.ApplicabilityRequired, "action-capable site", true},
	{"ai_agent_json", models.ProfileSaaS}:        {models.ApplicabilityRequired, "action-capable site", true},
	{"ai_agent_json", models.ProfileBlogContent}: {models.ApplicabilityNotApplicable, "no transactional actions expected", false},

	// llms.txt matters for every profile.
	{"llms_txt", models.ProfileEcommerce}:   {models.ApplicabilityRequired, "baseline agent discoverability", true},
	{"llms_txt", models.ProfileSaaS}:        {models.ApplicabilityRequired, "baseline agent discoverability", true},
	{"llms_txt", models.ProfileBlogContent}: {models.ApplicabilityRequired, "baseline agent discoverability", true},
	{"llms_txt", models.ProfileUnknown}:     {models.ApplicabilityRequired, "baseline agent discoverability", true},
}

// defaultRule applies when no profile-specific row exists.
var defaultRule = matrixRule{models.ApplicabilityOptional, "default policy", true}

// ResolveApplicability looks up the (indicator, profile) rule. The invariant
// that not_applicable is never counted holds by construction of the table and
// is re-enforced here for custom rows.
func ResolveApplicability(indicatorName, profile string) models.Applicability {
	rule, ok := applicabilityMatrix[matrixKey{indicatorName, profile}]
	if !ok {
		rule = defaultRule
	}
	counted := rule.Counted && rule.Status != models.ApplicabilityNotApplicable
	return models.Applicability{
		Status:                 rule.Status,
		Reason:                 rule.Reason,
		IncludedInCategoryMath: counted,
	}
}
