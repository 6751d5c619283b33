package apisource

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/candidates"
)

const tribeEventsPath = "/wp-json/tribe/events/v1/events"

// wpMarkers indicate a WordPress site that may run The Events Calendar.
var wpMarkers = []string{"wp-json", "tribe-events", "/wp-content/"}

// DiscoverEndpoints lists machine-readable event endpoints advertised by
// a page: alternate feed links that mention events, the Events Calendar
// REST route on WordPress sites, and the conventional /api/events path.
func DiscoverEndpoints(html, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(href string) {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		u := base.ResolveReference(ref).String()
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find(`link[rel="alternate"][href]`).Each(func(_ int, s *goquery.Selection) {
			kind := strings.ToLower(s.AttrOr("type", ""))
			if !strings.Contains(kind, "rss") && !strings.Contains(kind, "atom") && !strings.Contains(kind, "json") {
				return
			}
			href := s.AttrOr("href", "")
			if candidates.Score(s.AttrOr("title", "")+" "+href) > 0 {
				add(href)
			}
		})
	}

	lower := strings.ToLower(html)
	for _, marker := range wpMarkers {
		if strings.Contains(lower, marker) {
			add(tribeEventsPath)
			break
		}
	}
	add("/api/events")

	return out
}
