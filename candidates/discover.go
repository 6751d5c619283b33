// Package candidates ranks the URLs of a municipal site that are likely to
// host its events listing.
package candidates

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/logger"
	"golang.org/x/net/publicsuffix"
)

// Source records where a candidate came from.
type Source string

const (
	SourceAnchor  Source = "anchor"
	SourceSitemap Source = "sitemap"
	SourceCanned  Source = "canned"
	SourceSearch  Source = "search"
)

const (
	// DefaultMaxCandidates caps the ranked list handed to verification.
	DefaultMaxCandidates = 10

	sameHostBonus       = 2
	sameDomainBonus     = 1
	cannedScore         = 1
	searchScore         = 0.5
	maxChildSitemaps    = 5
	defaultProbeTimeout = 10 * time.Second
)

// cannedPaths are guessed on every site.
var cannedPaths = []string{
	"/veranstaltungen",
	"/agenda",
	"/kalender",
	"/anlaesse",
	"/events",
	"/evenements",
	"/manifestations",
	"/eventi",
	"/manifestaziuns",
}

// cannedSearches are site-search URLs for the word "events" per language.
var cannedSearches = []string{
	"/suche?q=veranstaltungen",
	"/search?q=events",
	"/recherche?q=manifestations",
	"/ricerca?q=eventi",
}

// Candidate is a URL that may be the events page.
type Candidate struct {
	URL    string  `json:"url"`
	Score  float64 `json:"score"`
	Source Source  `json:"source"`
}

// Discoverer produces ranked candidates for a homepage.
type Discoverer struct {
	fetcher fetch.Fetcher
	log     logger.Logger

	// MaxCandidates caps the result. Zero means DefaultMaxCandidates.
	MaxCandidates int
	// ProbeTimeout bounds each sitemap request.
	ProbeTimeout time.Duration
}

// NewDiscoverer creates a new Discoverer. A nil fetcher disables the
// sitemap scan.
func NewDiscoverer(f fetch.Fetcher, log logger.Logger) *Discoverer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Discoverer{
		fetcher:       f,
		log:           log,
		MaxCandidates: DefaultMaxCandidates,
		ProbeTimeout:  defaultProbeTimeout,
	}
}

// Discover merges anchor, sitemap, canned-path and canned-search candidates
// for the homepage at baseURL, deduplicated by absolute URL and sorted by
// descending score.
func (d *Discoverer) Discover(ctx context.Context, homepageHTML, baseURL string) []Candidate {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		d.log.Warn("invalid base url", logger.String("url", baseURL))
		return nil
	}

	set := newCandidateSet()

	for _, c := range d.scanAnchors(homepageHTML, base) {
		set.add(c)
	}
	for _, c := range d.scanSitemap(ctx, base) {
		set.add(c)
	}
	for _, p := range cannedPaths {
		set.add(Candidate{URL: resolve(base, p), Score: cannedScore, Source: SourceCanned})
	}
	for _, p := range cannedSearches {
		set.add(Candidate{URL: resolve(base, p), Score: searchScore, Source: SourceSearch})
	}

	limit := d.MaxCandidates
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	return set.ranked(limit)
}

func (d *Discoverer) scanAnchors(html string, base *url.URL) []Candidate {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []Candidate
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		target, ok := absolute(base, href)
		if !ok {
			return
		}

		score := Score(s.Text()) + Score(s.AttrOr("title", "")) + Score(target.Path)
		if score <= 0 {
			return
		}
		score += hostBonus(base, target)
		out = append(out, Candidate{URL: target.String(), Score: score, Source: SourceAnchor})
	})
	return out
}

// scanSitemap reads /sitemap.xml, following a sitemap index one level.
// Every failure yields no candidates.
func (d *Discoverer) scanSitemap(ctx context.Context, base *url.URL) []Candidate {
	if d.fetcher == nil {
		return nil
	}

	body, ok := d.get(ctx, resolve(base, "/sitemap.xml"))
	if !ok {
		return nil
	}

	locs, err := ParseSitemap(body)
	if err != nil {
		children, idxErr := ParseSitemapIndex(body)
		if idxErr != nil {
			d.log.Debug("sitemap unreadable", logger.String("url", base.String()), logger.Error(err))
			return nil
		}
		locs = d.readChildren(ctx, children)
	}

	var out []Candidate
	for _, loc := range locs {
		target, ok := absolute(base, strings.TrimSpace(loc))
		if !ok {
			continue
		}
		score := Score(target.Path)
		if score <= 0 {
			continue
		}
		out = append(out, Candidate{URL: target.String(), Score: score + hostBonus(base, target), Source: SourceSitemap})
	}
	return out
}

// readChildren fetches the most promising child sitemaps of an index.
func (d *Discoverer) readChildren(ctx context.Context, children []string) []string {
	sort.SliceStable(children, func(i, j int) bool {
		return Score(children[i]) > Score(children[j])
	})
	if len(children) > maxChildSitemaps {
		children = children[:maxChildSitemaps]
	}

	var locs []string
	for _, child := range children {
		body, ok := d.get(ctx, child)
		if !ok {
			continue
		}
		if l, err := ParseSitemap(body); err == nil {
			locs = append(locs, l...)
		}
	}
	return locs
}

func (d *Discoverer) get(ctx context.Context, u string) (string, bool) {
	resp, err := d.fetcher.Get(ctx, u, fetch.Options{Timeout: d.ProbeTimeout})
	if err != nil {
		return "", false
	}
	return resp.Body, true
}

func hostBonus(base, target *url.URL) float64 {
	if strings.EqualFold(base.Hostname(), target.Hostname()) {
		return sameHostBonus
	}
	if registrable(base.Hostname()) == registrable(target.Hostname()) {
		return sameDomainBonus
	}
	return 0
}

func registrable(host string) string {
	host = strings.ToLower(host)
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// absolute resolves href against base and rejects non-page links.
func absolute(base *url.URL, href string) (*url.URL, bool) {
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if skippable(u.Path) {
		return nil, false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, true
}

func resolve(base *url.URL, path string) string {
	u, _ := absolute(base, path)
	if u == nil {
		return ""
	}
	return u.String()
}

type candidateSet struct {
	byURL map[string]Candidate
	order []string
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byURL: make(map[string]Candidate)}
}

// add keeps the highest score seen for a URL.
func (s *candidateSet) add(c Candidate) {
	if c.URL == "" {
		return
	}
	key := strings.TrimSuffix(c.URL, "/")
	existing, ok := s.byURL[key]
	if !ok {
		s.order = append(s.order, key)
		s.byURL[key] = c
		return
	}
	if c.Score > existing.Score {
		s.byURL[key] = c
	}
}

func (s *candidateSet) ranked(limit int) []Candidate {
	out := make([]Candidate, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byURL[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
