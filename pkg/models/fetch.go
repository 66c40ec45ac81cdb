package models

type FetchResult struct {
	URL             string            `json:"url"`
	FinalURL        string            `json:"final_url"`
	StatusCode      int               `json:"status_code"`
	Headers         map[string]string `json:"headers,omitempty"`
	HTML            string            `json:"html,omitempty"`
	LoadTimeMs      int64             `json:"load_time_ms"`
	Title           string            `json:"title,omitempty"`
	MetaDescription string            `json:"meta_description,omitempty"`
	WordCount       int               `json:"word_count,omitempty"`
	ContentHash     string            `json:"content_hash,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// OK reports whether the fetch produced scannable content.
func (f *FetchResult) OK() bool {
	return f.Error == "" && f.StatusCode == 200 && f.HTML != ""
}

type RobotsTxt struct {
	Found      bool   `json:"found"`
	Content    string `json:"content,omitempty"`
	CheckedURL string `json:"checked_url,omitempty"`
}

type CrawlResult struct {
	RootURL     string        `json:"root_url"`
	Pages       []FetchResult `json:"pages"`
	RobotsTxt   RobotsTxt     `json:"robots_txt"`
	SitemapURLs []string      `json:"sitemap_urls,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
	DurationMs  int64         `json:"duration_ms"`
}

// SuccessfulPages returns the subset of pages eligible for scanning.
func (c *CrawlResult) SuccessfulPages() []FetchResult {
	pages := make([]FetchResult, 0, len(c.Pages))
	for _, p := range c.Pages {
		if p.OK() {
			pages = append(pages, p)
		}
	}
	return pages
}
