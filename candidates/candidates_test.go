package candidates

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pevans/eventfed/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(cands []Candidate, url string) (Candidate, bool) {
	for _, c := range cands {
		if c.URL == url {
			return c, true
		}
	}
	return Candidate{}, false
}

// TestScore verifies multilingual keyword scoring
func TestScore(t *testing.T) {
	assert.Greater(t, Score("Veranstaltungen"), 0.0)
	assert.Greater(t, Score("Événements"), 0.0)
	assert.Greater(t, Score("/it/eventi-e-manifestazioni"), 0.0)
	assert.Greater(t, Score("Occurrenzas"), 0.0)
	assert.Greater(t, Score("Kulturveranstaltungen"), 0.0, "compound word")
	assert.Equal(t, 0.0, Score("Prävention"), "event inside another word")
	assert.Equal(t, 0.0, Score("Steuern"))
	assert.Greater(t, Score("Agenda"), Score("Agenda Archiv"))
}

// TestDiscover_AnchorsRankedAndDeduplicated verifies anchor scanning
func TestDiscover_AnchorsRankedAndDeduplicated(t *testing.T) {
	html := `<html><body>
		<a href="/de/verwaltung">Verwaltung</a>
		<a href="/de/veranstaltungen#top">Veranstaltungen</a>
		<a href="/de/veranstaltungen">Anlässe</a>
		<a href="https://agenda.example.ch/kultur" title="Kulturagenda">Kultur</a>
		<a href="https://other.org/events">Events</a>
		<a href="mailto:info@example.ch">Agenda per Mail</a>
		<a href="/files/agenda.pdf">Agenda PDF</a>
	</body></html>`

	d := NewDiscoverer(nil, nil)
	cands := d.Discover(context.Background(), html, "https://www.example.ch/")
	require.NotEmpty(t, cands)

	assert.Equal(t, "https://www.example.ch/de/veranstaltungen", cands[0].URL)
	assert.Equal(t, SourceAnchor, cands[0].Source)

	count := 0
	for _, c := range cands {
		if strings.HasPrefix(c.URL, "https://www.example.ch/de/veranstaltungen") {
			count++
		}
		assert.NotContains(t, c.URL, "mailto")
		assert.NotContains(t, c.URL, ".pdf")
		assert.NotContains(t, c.URL, "verwaltung")
	}
	assert.Equal(t, 1, count, "fragment variants collapse")

	sub, ok := find(cands, "https://agenda.example.ch/kultur")
	require.True(t, ok)
	ext, ok := find(cands, "https://other.org/events")
	require.True(t, ok)
	assert.Greater(t, sub.Score-Score("Kultur")-Score("Kulturagenda")-Score("/kultur"), ext.Score-Score("Events")-Score("/events"),
		"same registrable domain earns a bonus")

	for i := 1; i < len(cands); i++ {
		assert.GreaterOrEqual(t, cands[i-1].Score, cands[i].Score)
	}
	assert.LessOrEqual(t, len(cands), DefaultMaxCandidates)
}

// TestDiscover_CannedFallbacks verifies canned guesses on an empty homepage
func TestDiscover_CannedFallbacks(t *testing.T) {
	d := NewDiscoverer(nil, nil)
	d.MaxCandidates = 50

	cands := d.Discover(context.Background(), "", "https://www.example.ch")
	require.Len(t, cands, len(cannedPaths)+len(cannedSearches))

	c, ok := find(cands, "https://www.example.ch/veranstaltungen")
	require.True(t, ok)
	assert.Equal(t, SourceCanned, c.Source)

	last := cands[len(cands)-1]
	assert.Equal(t, SourceSearch, last.Source)
}

// TestDiscover_Cap verifies the candidate cap
func TestDiscover_Cap(t *testing.T) {
	d := NewDiscoverer(nil, nil)
	d.MaxCandidates = 3

	cands := d.Discover(context.Background(), "", "https://www.example.ch")
	assert.Len(t, cands, 3)
}

// TestDiscover_Sitemap verifies sitemap and sitemap index scanning
func TestDiscover_Sitemap(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-pages.xml</loc></sitemap>
</sitemapindex>`, server.URL)
		case "/sitemap-pages.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/leben/freizeit/veranstaltungskalender</loc></url>
  <url><loc>%s/verwaltung/steuern</loc></url>
</urlset>`, server.URL, server.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	d := NewDiscoverer(fetch.NewClient(fetch.Config{}, nil), nil)
	cands := d.Discover(context.Background(), "", server.URL)

	c, ok := find(cands, server.URL+"/leben/freizeit/veranstaltungskalender")
	require.True(t, ok)
	assert.Equal(t, SourceSitemap, c.Source)
	assert.Equal(t, server.URL+"/leben/freizeit/veranstaltungskalender", cands[0].URL)

	_, ok = find(cands, server.URL+"/verwaltung/steuern")
	assert.False(t, ok)
}

// TestDiscover_SitemapFailureSwallowed verifies a broken sitemap is ignored
func TestDiscover_SitemapFailureSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not xml"))
	}))
	defer server.Close()

	d := NewDiscoverer(fetch.NewClient(fetch.Config{}, nil), nil)
	cands := d.Discover(context.Background(), "", server.URL)
	assert.NotEmpty(t, cands)
	for _, c := range cands {
		assert.NotEqual(t, SourceSitemap, c.Source)
	}
}

// TestDiscover_InvalidBase verifies a bad base URL yields nothing
func TestDiscover_InvalidBase(t *testing.T) {
	d := NewDiscoverer(nil, nil)
	assert.Empty(t, d.Discover(context.Background(), "<a href='/agenda'>Agenda</a>", "not a url"))
}
