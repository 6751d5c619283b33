package candidates

import (
	"encoding/xml"
	"fmt"
)

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// ParseSitemap returns the <loc> values of a urlset document.
func ParseSitemap(body string) ([]string, error) {
	var set xmlURLSet
	if err := xml.Unmarshal([]byte(body), &set); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}
	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		locs = append(locs, u.Loc)
	}
	return locs, nil
}

// ParseSitemapIndex returns the child sitemap URLs of a sitemapindex
// document.
func ParseSitemapIndex(body string) ([]string, error) {
	var index xmlSitemapIndex
	if err := xml.Unmarshal([]byte(body), &index); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap index: %w", err)
	}
	locs := make([]string, 0, len(index.Sitemaps))
	for _, s := range index.Sitemaps {
		locs = append(locs, s.Loc)
	}
	return locs, nil
}
