package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/extract"
	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

const agendaTable = `<html><body>
	<h1>Agenda</h1>
	<table>
		<tr><th>Datum</th><th>Anlass</th><th>Ort</th></tr>
		<tr><td>12.05.2026</td><td>Dorffest</td><td>Dorfplatz</td></tr>
		<tr><td>14.05.2026</td><td>Seniorennachmittag</td><td>Kirchgemeindehaus</td></tr>
	</table>
</body></html>`

const emptyPage = `<html><body><h1>Willkommen</h1><p>Aktuelles aus der Gemeinde.</p></body></html>`

// memStore records what the orchestrator writes.
type memStore struct {
	mu          sync.Mutex
	discoveries map[uuid.UUID]store.Discovery
	outcomes    map[uuid.UUID][]store.ScrapeOutcome
	events      map[string]model.PersistedEvent
	failUpsert  map[string]bool
	due         []model.Site
}

func newMemStore() *memStore {
	return &memStore{
		discoveries: make(map[uuid.UUID]store.Discovery),
		outcomes:    make(map[uuid.UUID][]store.ScrapeOutcome),
		events:      make(map[string]model.PersistedEvent),
		failUpsert:  make(map[string]bool),
	}
}

func (m *memStore) UpdateSiteDiscovery(_ context.Context, id uuid.UUID, d store.Discovery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoveries[id] = d
	return nil
}

func (m *memStore) UpdateSiteAfterScrape(_ context.Context, id uuid.UUID, o store.ScrapeOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[id] = append(m.outcomes[id], o)
	return nil
}

func (m *memStore) UpsertEvent(_ context.Context, ev model.PersistedEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert[ev.SiteID] {
		return false, errors.New("disk full")
	}
	_, exists := m.events[ev.Hash]
	m.events[ev.Hash] = ev
	return !exists, nil
}

func (m *memStore) SitesDueForScrape(context.Context, store.DueQuery) ([]model.Site, error) {
	return m.due, nil
}

func (m *memStore) lastOutcome(t *testing.T, id uuid.UUID) store.ScrapeOutcome {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	outcomes := m.outcomes[id]
	require.NotEmpty(t, outcomes)
	return outcomes[len(outcomes)-1]
}

func (m *memStore) eventsFor(id uuid.UUID) []model.PersistedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PersistedEvent
	for _, ev := range m.events {
		if ev.SiteID == id.String() {
			out = append(out, ev)
		}
	}
	return out
}

// fakeRenderer returns canned HTML or an error.
type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (f *fakeRenderer) Render(context.Context, string, time.Duration) (string, error) {
	f.calls++
	return f.html, f.err
}

// fakeGeocoder resolves a fixed set of addresses.
type fakeGeocoder struct {
	known map[string][2]float64
}

func (f *fakeGeocoder) Lookup(_ context.Context, address string) (float64, float64, bool) {
	p, ok := f.known[address]
	return p[0], p[1], ok
}

// webSite serves fixed pages by path and counts requests.
type webSite struct {
	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
}

func newSite(t *testing.T, pages map[string]string) (*webSite, *httptest.Server) {
	t.Helper()
	s := &webSite{pages: pages, hits: make(map[string]int)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		body, ok := s.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if len(body) > 0 && (body[0] == '{' || body[0] == '[') {
			w.Header().Set("Content-Type", "application/json")
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return s, server
}

func (s *webSite) hitsFor(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestService(st *memStore, deps Deps) *Service {
	deps.Fetcher = fetch.NewClient(fetch.Config{}, nil)
	deps.Store = st
	deps.Now = func() time.Time { return testNow }
	return NewService(Config{}, deps, nil)
}

func testSite(websiteURL string) model.Site {
	return model.Site{
		ID:         uuid.New(),
		Name:       "Testdorf",
		Latitude:   47.1,
		Longitude:  8.2,
		WebsiteURL: websiteURL,
		CmsType:    model.CmsUnknown,
	}
}

// TestDiscoverEventPage_Exhausted verifies a site without any events page
// is left untouched
func TestDiscoverEventPage_Exhausted(t *testing.T) {
	_, server := newSite(t, map[string]string{"/": emptyPage})
	st := newMemStore()
	svc := newTestService(st, Deps{})
	s := testSite(server.URL)

	result, err := svc.DiscoverEventPage(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, result.State)
	assert.Empty(t, result.EventPageURL)
	assert.Empty(t, result.APIEndpoint)
	assert.NotEmpty(t, result.Checks)
	assert.Empty(t, st.discoveries)
}

// TestDiscoverEventPage_FirstSuccessWins verifies verification stops at the
// first candidate with events even if a later one would score higher
func TestDiscoverEventPage_FirstSuccessWins(t *testing.T) {
	homepage := `<html><body><nav>
		<a href="/agenda" title="Veranstaltungen">Agenda</a>
		<a href="/events-json">Events</a>
	</nav></body></html>`
	structured := `<html><head><script type="application/ld+json">
		{"@type":"Event","name":"Jazz im Park","startDate":"2026-05-20T19:00:00+02:00"}
	</script></head><body></body></html>`

	web, server := newSite(t, map[string]string{
		"/":            homepage,
		"/agenda":      agendaTable,
		"/events-json": structured,
	})
	st := newMemStore()
	svc := newTestService(st, Deps{})
	s := testSite(server.URL)

	result, err := svc.DiscoverEventPage(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, StateFound, result.State)
	assert.Equal(t, server.URL+"/agenda", result.EventPageURL)
	assert.Equal(t, "/agenda", result.EventPagePattern)
	assert.Equal(t, extract.ConfidenceTable, result.Confidence)
	assert.False(t, result.RequiresJavascript)
	require.Len(t, result.Checks, 1)
	assert.Equal(t, SignalEvents, result.Checks[0].Signal)
	assert.Equal(t, 0, web.hitsFor("/events-json"))

	saved, ok := st.discoveries[s.ID]
	require.True(t, ok)
	assert.Equal(t, server.URL+"/agenda", saved.EventPageURL)
	assert.Equal(t, model.CmsUnknown, saved.CmsType)
	require.NotNil(t, saved.Confidence)
	assert.Equal(t, extract.ConfidenceTable, *saved.Confidence)
}

// TestDiscoverEventPage_APIEndpoint verifies an advertised endpoint that
// yields events is recorded alongside the page
func TestDiscoverEventPage_APIEndpoint(t *testing.T) {
	_, server := newSite(t, map[string]string{
		"/":           emptyPage,
		"/api/events": `{"events":[{"title":"Dorffest","start":"2026-05-12T18:00:00+02:00"}]}`,
	})
	st := newMemStore()
	svc := newTestService(st, Deps{})
	s := testSite(server.URL)

	result, err := svc.DiscoverEventPage(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, StateFound, result.State)
	assert.Empty(t, result.EventPageURL)
	assert.Equal(t, server.URL+"/api/events", result.APIEndpoint)
	assert.Equal(t, extract.ConfidenceJSONLD, result.Confidence)
	assert.Equal(t, server.URL+"/api/events", st.discoveries[s.ID].APIEndpoint)
}

// TestDiscoverEventPage_NoWebsite verifies a site without URL is rejected
func TestDiscoverEventPage_NoWebsite(t *testing.T) {
	svc := newTestService(newMemStore(), Deps{})
	_, err := svc.DiscoverEventPage(context.Background(), testSite(""))
	assert.ErrorIs(t, err, ErrNoWebsite)
}

// TestScrapeSite_Table verifies a table page is extracted, persisted and
// recorded as an active scrape
func TestScrapeSite_Table(t *testing.T) {
	_, server := newSite(t, map[string]string{"/agenda": agendaTable})
	st := newMemStore()
	geo := &fakeGeocoder{known: map[string][2]float64{"Dorfplatz, Testdorf": {47.2, 8.3}}}
	svc := newTestService(st, Deps{Geocoder: geo})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"

	events, err := svc.ScrapeSite(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	outcome := st.lastOutcome(t, s.ID)
	assert.Equal(t, model.StatusActive, outcome.Status)
	assert.Equal(t, 2, outcome.EventCount)
	assert.Nil(t, outcome.RequiresJavascript)
	assert.Equal(t, testNow, outcome.ScrapedAt)

	stored := st.eventsFor(s.ID)
	require.Len(t, stored, 2)
	for _, ev := range stored {
		assert.Equal(t, extract.MethodTable, ev.Source)
		require.NotNil(t, ev.Latitude)
		require.NotNil(t, ev.Longitude)
		switch ev.Title {
		case "Dorffest":
			assert.Equal(t, 47.2, *ev.Latitude)
			assert.Equal(t, 8.3, *ev.Longitude)
		case "Seniorennachmittag":
			assert.Equal(t, s.Latitude, *ev.Latitude)
			assert.Equal(t, s.Longitude, *ev.Longitude)
		default:
			t.Errorf("unexpected event %q", ev.Title)
		}
	}

	// A rescrape updates rather than duplicates.
	_, err = svc.ScrapeSite(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, st.eventsFor(s.ID), 2)
	assert.Equal(t, 2, st.lastOutcome(t, s.ID).EventCount)
}

// TestScrapeSite_OutsideWindowFiltered verifies past events are not stored
func TestScrapeSite_OutsideWindowFiltered(t *testing.T) {
	page := `<html><body><table>
		<tr><th>Datum</th><th>Anlass</th></tr>
		<tr><td>12.01.2026</td><td>Neujahrsapéro</td></tr>
		<tr><td>12.05.2026</td><td>Dorffest</td></tr>
	</table></body></html>`
	_, server := newSite(t, map[string]string{"/agenda": page})
	st := newMemStore()
	svc := newTestService(st, Deps{})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"

	_, err := svc.ScrapeSite(context.Background(), s)
	require.NoError(t, err)

	stored := st.eventsFor(s.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, "Dorffest", stored[0].Title)
	assert.Equal(t, 1, st.lastOutcome(t, s.ID).EventCount)
}

// TestScrapeSite_APIFirst verifies an API endpoint short-circuits the page
func TestScrapeSite_APIFirst(t *testing.T) {
	web, server := newSite(t, map[string]string{
		"/agenda":     agendaTable,
		"/api/events": `[{"title":"Waldumgang","start":"2026-05-20T09:00:00+02:00"}]`,
	})
	st := newMemStore()
	svc := newTestService(st, Deps{})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"
	s.APIEndpoint = server.URL + "/api/events"

	events, err := svc.ScrapeSite(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Waldumgang", events[0].Title)
	assert.Equal(t, 0, web.hitsFor("/agenda"))

	stored := st.eventsFor(s.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, MethodAPI, stored[0].Source)
}

// TestScrapeSite_APIFallsBackToPage verifies a broken endpoint falls back
func TestScrapeSite_APIFallsBackToPage(t *testing.T) {
	_, server := newSite(t, map[string]string{"/agenda": agendaTable})
	st := newMemStore()
	svc := newTestService(st, Deps{})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"
	s.APIEndpoint = server.URL + "/api/missing"

	events, err := svc.ScrapeSite(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

// TestScrapeSite_APIOutsideWindowFallsBack verifies an endpoint with only
// past events does not stop the page strategies
func TestScrapeSite_APIOutsideWindowFallsBack(t *testing.T) {
	web, server := newSite(t, map[string]string{
		"/agenda":     agendaTable,
		"/api/events": `{"items":[{"name":"Fasnacht","startDate":"2026-02-12"}]}`,
	})
	st := newMemStore()
	svc := newTestService(st, Deps{})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"
	s.APIEndpoint = server.URL + "/api/events"

	events, err := svc.ScrapeSite(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, web.hitsFor("/agenda"))
	for _, ev := range st.eventsFor(s.ID) {
		assert.Equal(t, extract.MethodTable, ev.Source)
	}
}

// TestScrapeSite_NoEventPage verifies a site without target is marked failed
func TestScrapeSite_NoEventPage(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, Deps{})
	s := testSite("https://www.testdorf.ch")

	_, err := svc.ScrapeSite(context.Background(), s)
	require.ErrorIs(t, err, ErrNoEventPage)

	outcome := st.lastOutcome(t, s.ID)
	assert.Equal(t, model.StatusFailed, outcome.Status)
	assert.Equal(t, ErrNoEventPage.Error(), outcome.Error)
}

// TestScrapeSite_NoEvents verifies an events page without events fails
func TestScrapeSite_NoEvents(t *testing.T) {
	_, server := newSite(t, map[string]string{"/agenda": emptyPage})
	st := newMemStore()
	svc := newTestService(st, Deps{})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"

	_, err := svc.ScrapeSite(context.Background(), s)
	require.ErrorIs(t, err, ErrNoEvents)

	outcome := st.lastOutcome(t, s.ID)
	assert.Equal(t, model.StatusFailed, outcome.Status)
	assert.NotEmpty(t, outcome.Error)
	assert.Empty(t, st.eventsFor(s.ID))
}

// TestScrapeSite_PageError verifies a failing page marks the site failed
func TestScrapeSite_PageError(t *testing.T) {
	_, server := newSite(t, map[string]string{})
	st := newMemStore()
	svc := newTestService(st, Deps{})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"

	_, err := svc.ScrapeSite(context.Background(), s)
	require.Error(t, err)
	assert.True(t, fetch.IsStatus(err, http.StatusNotFound))
	assert.Equal(t, model.StatusFailed, st.lastOutcome(t, s.ID).Status)
}

// TestScrapeSite_Headless verifies a script-driven site is rendered and
// recorded as headless-active
func TestScrapeSite_Headless(t *testing.T) {
	shell := `<html><head><script src="/app.js"></script></head><body><div id="app"></div></body></html>`
	_, server := newSite(t, map[string]string{"/agenda": shell})
	st := newMemStore()
	renderer := &fakeRenderer{html: agendaTable}
	svc := newTestService(st, Deps{Renderer: renderer})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"
	s.RequiresJavascript = true

	events, err := svc.ScrapeSite(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, renderer.calls)

	outcome := st.lastOutcome(t, s.ID)
	assert.Equal(t, model.StatusHeadlessActive, outcome.Status)
	require.NotNil(t, outcome.RequiresJavascript)
	assert.True(t, *outcome.RequiresJavascript)
}

// TestScrapeSite_RenderFailureUsesStaticHTML verifies a failed render
// degrades to the static page
func TestScrapeSite_RenderFailureUsesStaticHTML(t *testing.T) {
	_, server := newSite(t, map[string]string{"/agenda": agendaTable})
	st := newMemStore()
	renderer := &fakeRenderer{err: errors.New("chrome not found")}
	svc := newTestService(st, Deps{Renderer: renderer})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"
	s.RequiresJavascript = true

	events, err := svc.ScrapeSite(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, renderer.calls)
	assert.Equal(t, model.StatusActive, st.lastOutcome(t, s.ID).Status)
}

// TestScrapeBatch_IsolatesFailures verifies one failing site does not stop
// the others
func TestScrapeBatch_IsolatesFailures(t *testing.T) {
	_, server := newSite(t, map[string]string{"/agenda": agendaTable})
	st := newMemStore()
	svc := newTestService(st, Deps{})

	var sites []model.Site
	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		s := testSite(server.URL)
		s.Name = name
		s.EventPageURL = server.URL + "/agenda"
		sites = append(sites, s)
	}
	st.due = sites
	st.failUpsert[sites[1].ID.String()] = true

	runner := NewRunner(svc, st, BatchConfig{}, nil, nil)
	result, err := runner.ScrapeBatch(context.Background(), 10, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 4, result.TotalEvents)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
	require.Len(t, result.Sites, 3)

	assert.Equal(t, model.StatusActive, result.Sites[0].Status)
	assert.Equal(t, model.StatusFailed, result.Sites[1].Status)
	assert.Contains(t, result.Sites[1].Error, "disk full")
	assert.Equal(t, model.StatusActive, result.Sites[2].Status)
	assert.Equal(t, 2, result.Sites[2].Events)

	assert.Equal(t, model.StatusFailed, st.lastOutcome(t, sites[1].ID).Status)
	assert.Equal(t, model.StatusActive, st.lastOutcome(t, sites[2].ID).Status)

	status := runner.Status()
	assert.False(t, status.Running)
	require.NotNil(t, status.Last)
	assert.Equal(t, result.RunID, status.Last.RunID)
}

// TestScrapeBatch_ReportsHeadlessStatus verifies the batch result carries
// the status recorded on the site
func TestScrapeBatch_ReportsHeadlessStatus(t *testing.T) {
	shell := `<html><head><script src="/app.js"></script></head><body><div id="app"></div></body></html>`
	_, server := newSite(t, map[string]string{"/agenda": shell})
	st := newMemStore()
	svc := newTestService(st, Deps{Renderer: &fakeRenderer{html: agendaTable}})

	s := testSite(server.URL)
	s.EventPageURL = server.URL + "/agenda"
	s.RequiresJavascript = true
	st.due = []model.Site{s}

	result, err := NewRunner(svc, st, BatchConfig{}, nil, nil).ScrapeBatch(context.Background(), 10, 0)
	require.NoError(t, err)

	require.Len(t, result.Sites, 1)
	assert.Equal(t, model.StatusHeadlessActive, result.Sites[0].Status)
	assert.Equal(t, 2, result.Sites[0].Events)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, model.StatusHeadlessActive, st.lastOutcome(t, s.ID).Status)
}

// blockingScraper holds every scrape until released.
type blockingScraper struct {
	started chan struct{}
	release chan struct{}
	panics  map[uuid.UUID]bool
	failed  []uuid.UUID
	mu      sync.Mutex
}

func (b *blockingScraper) Scrape(_ context.Context, site model.Site) (SiteOutcome, error) {
	if b.panics[site.ID] {
		panic("unexpected markup")
	}
	if b.started != nil {
		b.started <- struct{}{}
		<-b.release
	}
	return SiteOutcome{
		Events: []model.ExtractedEvent{{Title: "Dorffest", StartDate: testNow}},
		Status: model.StatusActive,
	}, nil
}

func (b *blockingScraper) MarkFailed(_ context.Context, site model.Site, _ error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = append(b.failed, site.ID)
}

// TestScrapeBatch_RejectsConcurrentRun verifies a second batch fails fast
// while one is running
func TestScrapeBatch_RejectsConcurrentRun(t *testing.T) {
	scraper := &blockingScraper{started: make(chan struct{}), release: make(chan struct{})}
	st := newMemStore()
	st.due = []model.Site{testSite("https://www.testdorf.ch")}
	runner := NewRunner(scraper, st, BatchConfig{}, nil, nil)

	done := make(chan BatchResult, 1)
	go func() {
		result, err := runner.ScrapeBatch(context.Background(), 10, 0)
		assert.NoError(t, err)
		done <- result
	}()

	<-scraper.started
	assert.True(t, runner.Status().Running)

	_, err := runner.ScrapeBatch(context.Background(), 10, 0)
	assert.ErrorIs(t, err, ErrBatchInProgress)

	close(scraper.release)
	result := <-done
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.TotalEvents)
	assert.False(t, runner.Status().Running)
}

// TestScrapeBatch_RecoversPanic verifies a panicking site is marked failed
func TestScrapeBatch_RecoversPanic(t *testing.T) {
	first, second := testSite("https://a.ch"), testSite("https://b.ch")
	scraper := &blockingScraper{panics: map[uuid.UUID]bool{first.ID: true}}
	st := newMemStore()
	st.due = []model.Site{first, second}
	runner := NewRunner(scraper, st, BatchConfig{}, nil, nil)

	result, err := runner.ScrapeBatch(context.Background(), 10, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Contains(t, result.Sites[0].Error, "unexpected markup")
	assert.Equal(t, []uuid.UUID{first.ID}, scraper.failed)
}

// TestScrapeBatch_PolitenessDelay verifies sites are spaced out and a
// cancelled context stops the batch
func TestScrapeBatch_PolitenessDelay(t *testing.T) {
	st := newMemStore()
	st.due = []model.Site{testSite("https://a.ch"), testSite("https://b.ch")}
	runner := NewRunner(&blockingScraper{}, st, BatchConfig{PolitenessDelay: 100 * time.Millisecond}, nil, nil)

	start := time.Now()
	result, err := runner.ScrapeBatch(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, result.Sites, 2)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err = runner.ScrapeBatch(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, result.Sites, 1)
}

// TestStart_RunsInBackground verifies a background batch holds the slot
// and publishes its result through Status
func TestStart_RunsInBackground(t *testing.T) {
	scraper := &blockingScraper{started: make(chan struct{}), release: make(chan struct{})}
	st := newMemStore()
	st.due = []model.Site{testSite("https://www.testdorf.ch")}
	runner := NewRunner(scraper, st, BatchConfig{}, nil, nil)

	runID, err := runner.Start(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, runID)
	assert.True(t, runner.Status().Running)

	<-scraper.started
	_, err = runner.Start(context.Background(), 10, 0)
	assert.ErrorIs(t, err, ErrBatchInProgress)

	close(scraper.release)
	require.Eventually(t, func() bool { return !runner.Status().Running }, 2*time.Second, 10*time.Millisecond)

	last := runner.Status().Last
	require.NotNil(t, last)
	assert.Equal(t, runID, last.RunID)
	assert.Equal(t, 1, last.SuccessCount)
}
