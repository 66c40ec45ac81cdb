package models

// Site is the minimal site record the engine needs from the site directory.
type Site struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Owner string `json:"owner"`
}

const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Entitlement carries the caller's already-resolved crawl caps. The engine
// never decides entitlements itself.
type Entitlement struct {
	Plan          string `json:"plan"`
	MaxPages      int    `json:"max_pages"`
	AllowSitemap  bool   `json:"allow_sitemap"`
	RetainRawData bool   `json:"retain_raw_data"`
}
