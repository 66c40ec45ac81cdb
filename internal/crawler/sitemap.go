package crawler

import (
	"encoding/xml"
	"strings"
)

type sitemapURLSet struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []sitemapNode `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name      `xml:"sitemapindex"`
	Sitemaps []sitemapNode `xml:"sitemap"`
}

type sitemapNode struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// SitemapInfo is the parsed shape of one sitemap document.
type SitemapInfo struct {
	URLs        []string
	IsIndex     bool
	HasLastMod  bool
	HasFreqInfo bool
}

// ParseSitemap parses a urlset or sitemapindex document, reporting whether
// lastmod/changefreq/priority metadata is present. Malformed XML is an error.
func ParseSitemap(content string) (*SitemapInfo, error) {
	var urlset sitemapURLSet
	if err := xml.Unmarshal([]byte(content), &urlset); err == nil && len(urlset.URLs) > 0 {
		return sitemapInfoFromNodes(urlset.URLs, false), nil
	}
	var index sitemapIndex
	if err := xml.Unmarshal([]byte(content), &index); err != nil {
		return nil, err
	}
	if len(index.Sitemaps) == 0 {
		return nil, errEmptySitemap
	}
	return sitemapInfoFromNodes(index.Sitemaps, true), nil
}

var errEmptySitemap = xml.UnmarshalError("sitemap contains no url entries")

func sitemapInfoFromNodes(nodes []sitemapNode, isIndex bool) *SitemapInfo {
	info := &SitemapInfo{URLs: nodeLocations(nodes), IsIndex: isIndex}
	for _, n := range nodes {
		if strings.TrimSpace(n.LastMod) != "" {
			info.HasLastMod = true
		}
		if strings.TrimSpace(n.ChangeFreq) != "" || strings.TrimSpace(n.Priority) != "" {
			info.HasFreqInfo = true
		}
	}
	return info
}

// ParseSitemapDirectives extracts the URLs of "Sitemap:" lines from robots.txt
// content, preserving order.
func ParseSitemapDirectives(robotsContent string) []string {
	var out []string
	for _, line := range strings.Split(robotsContent, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		u := strings.TrimSpace(line[8:])
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// ParseSitemapLocations returns the <loc> entries of a urlset or sitemapindex
// document in document order. Malformed XML yields nil.
func ParseSitemapLocations(content string) []string {
	var urlset sitemapURLSet
	if err := xml.Unmarshal([]byte(content), &urlset); err == nil && len(urlset.URLs) > 0 {
		return nodeLocations(urlset.URLs)
	}
	var index sitemapIndex
	if err := xml.Unmarshal([]byte(content), &index); err == nil && len(index.Sitemaps) > 0 {
		return nodeLocations(index.Sitemaps)
	}
	return nil
}

func nodeLocations(nodes []sitemapNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		loc := strings.TrimSpace(n.Loc)
		if loc != "" {
			out = append(out, loc)
		}
	}
	return out
}
