package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/cms"
	"github.com/pevans/eventfed/dateparse"
	"github.com/pevans/eventfed/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageURL = "https://www.gemeinde.ch/de/veranstaltungen"

func testContext() Context {
	return Context{
		PageURL: pageURL,
		BaseURL: "https://www.gemeinde.ch",
		Cms:     model.CmsUnknown,
		Parser:  dateparse.New(),
	}
}

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func zurichDate(y int, m time.Month, d, hh, mm int) time.Time {
	loc, _ := time.LoadLocation("Europe/Zurich")
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

// fakeStrategy returns canned events or panics
type fakeStrategy struct {
	method     string
	confidence float64
	events     []model.ExtractedEvent
	panics     bool
	calls      int
}

func (f *fakeStrategy) Method() string      { return f.method }
func (f *fakeStrategy) Confidence() float64 { return f.confidence }
func (f *fakeStrategy) Extract(*goquery.Document, Context) Outcome {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return Outcome{Events: f.events}
}

func oneEvent(title string) []model.ExtractedEvent {
	return []model.ExtractedEvent{{Title: title, StartDate: zurichDate(2026, 5, 12, 0, 0)}}
}

// TestChain_TableScenario verifies a header plus two rows yields two events
func TestChain_TableScenario(t *testing.T) {
	html := `<html><body>
		<table>
			<tr><th>Datum</th><th>Anlass</th><th>Ort</th></tr>
			<tr><td>12.05.2026</td><td><a href="/anlass/1">Dorffest</a></td><td>Dorfplatz</td></tr>
			<tr><td>14.05.2026</td><td>Seniorennachmittag</td><td>Kirchgemeindehaus</td></tr>
		</table>
	</body></html>`

	report := NewChain(nil, nil).Extract(html, testContext())

	require.Len(t, report.Best.Events, 2)
	assert.Equal(t, MethodTable, report.Best.Method)
	assert.Equal(t, ConfidenceTable, report.Best.Confidence)

	first := report.Best.Events[0]
	assert.Equal(t, "Dorffest", first.Title)
	assert.Equal(t, "Dorfplatz", first.Location)
	assert.Equal(t, "https://www.gemeinde.ch/anlass/1", first.URL)
	assert.True(t, zurichDate(2026, 5, 12, 0, 0).Equal(first.StartDate))
	assert.Equal(t, "Seniorennachmittag", report.Best.Events[1].Title)
}

// TestChain_TablePartialHeader verifies columns the header does not name
// fall back to their positional meaning
func TestChain_TablePartialHeader(t *testing.T) {
	html := `<html><body>
		<table>
			<tr><th>Datum</th><th>Programm</th><th>Treffpunkt</th></tr>
			<tr><td>12.06.2026</td><td>Waldumgang mit dem Förster</td><td>Schulhausplatz</td></tr>
			<tr><td>20.06.2026</td><td>Sommerkonzert</td><td>Kirche</td></tr>
		</table>
	</body></html>`

	report := NewChain(nil, nil).Extract(html, testContext())

	assert.Equal(t, MethodTable, report.Best.Method)
	require.Len(t, report.Best.Events, 2)
	assert.Equal(t, "Waldumgang mit dem Förster", report.Best.Events[0].Title)
	assert.Equal(t, "Schulhausplatz", report.Best.Events[0].Location)
	assert.True(t, zurichDate(2026, 6, 12, 0, 0).Equal(report.Best.Events[0].StartDate))
	assert.Equal(t, "Sommerkonzert", report.Best.Events[1].Title)
}

// TestMapHeader verifies recognized headers claim their column and the
// rest take the remaining kinds in order
func TestMapHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []column
	}{
		{"all recognized", "<th>Datum</th><th>Anlass</th><th>Ort</th>", []column{colDate, colTitle, colLocation}},
		{"none recognized", "<th>A</th><th>B</th><th>C</th>", []column{colDate, colTitle, colLocation}},
		{"date last", "<th>Programm</th><th>Datum</th>", []column{colTitle, colDate}},
		{"duplicate kind ignored", "<th>Datum</th><th>Zeit</th><th>Anlass</th>", []column{colDate, colNone, colTitle}},
		{"wider than positional", "<th>A</th><th>B</th><th>C</th><th>D</th><th>E</th>", []column{colDate, colTitle, colLocation, colOrganizer, colNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table><tr>" + tt.header + "</tr></table>"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, mapHeader(doc.Find("tr").First().Find("th, td")))
		})
	}
}

// TestChain_JSONLDBeatsLowerConfidence verifies structured data wins
func TestChain_JSONLDBeatsLowerConfidence(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"@type":"Event","name":"Jazz im Park","startDate":"2026-06-20T19:00:00+02:00"}</script>
	</head><body>
		<div class="event"><h3>Dorffest</h3><span class="date">12.05.2026</span></div>
		<div class="event"><h3>Märit</h3><span class="date">13.05.2026</span></div>
	</body></html>`

	report := NewChain(nil, nil).Extract(html, testContext())

	assert.Equal(t, MethodJSONLD, report.Best.Method)
	assert.Equal(t, ConfidenceJSONLD, report.Best.Confidence)
	require.Len(t, report.Best.Events, 1)
	assert.Equal(t, "Jazz im Park", report.Best.Events[0].Title)
	assert.Nil(t, report.Selectors)

	require.Len(t, report.Attempts, 7)
	assert.Equal(t, MethodCMS, report.Attempts[0].Method)
	assert.Equal(t, 2, report.Attempts[0].Events)
	assert.Equal(t, ConfidenceCMS, report.Attempts[0].Confidence)
	for _, a := range report.Attempts[2:] {
		assert.True(t, a.Skipped, a.Method)
	}
}

// TestChain_EmptyHighConfidenceNeverWins verifies the replacement rule
func TestChain_EmptyHighConfidenceNeverWins(t *testing.T) {
	low := &fakeStrategy{method: "low", confidence: 0.6, events: oneEvent("Fest")}
	high := &fakeStrategy{method: "high", confidence: 0.95}

	report := NewChainWith(nil, low, high).Extract("<html></html>", testContext())

	assert.Equal(t, "low", report.Best.Method)
	assert.Equal(t, 0.6, report.Best.Confidence)
	assert.Equal(t, 1, high.calls, "higher confidence strategies still run")
}

// TestChain_EqualConfidenceDoesNotReplace verifies strict comparison
func TestChain_EqualConfidenceDoesNotReplace(t *testing.T) {
	first := &fakeStrategy{method: "first", confidence: 0.7, events: oneEvent("A")}
	second := &fakeStrategy{method: "second", confidence: 0.7, events: oneEvent("B")}

	report := NewChainWith(nil, first, second).Extract("<html></html>", testContext())

	assert.Equal(t, "first", report.Best.Method)
	assert.Equal(t, 0, second.calls)
	assert.True(t, report.Attempts[1].Skipped)
}

// TestChain_PanicIsolated verifies a panicking strategy does not abort the chain
func TestChain_PanicIsolated(t *testing.T) {
	bad := &fakeStrategy{method: "bad", confidence: 0.9, panics: true}
	good := &fakeStrategy{method: "good", confidence: 0.5, events: oneEvent("Fest")}

	report := NewChainWith(nil, bad, good).Extract("<html></html>", testContext())

	assert.Equal(t, "good", report.Best.Method)
	require.Len(t, report.Attempts, 2)
	require.Len(t, report.Attempts[0].Errors, 1)
	assert.Contains(t, report.Attempts[0].Errors[0], "panic")
}

// TestChain_DropsEventsWithoutStart verifies the start-date invariant
func TestChain_DropsEventsWithoutStart(t *testing.T) {
	s := &fakeStrategy{method: "s", confidence: 0.9, events: []model.ExtractedEvent{
		{Title: "No date"},
		{Title: "", StartDate: zurichDate(2026, 5, 12, 0, 0)},
		{Title: "Ok", StartDate: zurichDate(2026, 5, 12, 0, 0)},
		{Title: " ok ", StartDate: zurichDate(2026, 5, 12, 0, 0)},
	}}

	report := NewChainWith(nil, s).Extract("<html></html>", testContext())

	require.Len(t, report.Best.Events, 1)
	assert.Equal(t, "Ok", report.Best.Events[0].Title)
}

// TestChain_NothingFound verifies an empty page yields zero confidence
func TestChain_NothingFound(t *testing.T) {
	report := NewChain(nil, nil).Extract("<html><body><p>Willkommen</p></body></html>", testContext())
	assert.False(t, report.Found())
	assert.Equal(t, 0.0, report.Best.Confidence)
	assert.Len(t, report.Attempts, 7)
}

// TestCMSStrategy_DrupalSelectors verifies family selectors and write-back
func TestCMSStrategy_DrupalSelectors(t *testing.T) {
	html := `<div class="view-events">
		<div class="views-row">
			<div class="views-field-title"><a href="dorffest">Dorffest</a></div>
			<span class="date-display-single">12.05.2026, 19:30</span>
			<div class="views-field-field-location">Schulhausplatz</div>
		</div>
		<div class="views-row">
			<div class="views-field-title"><a href="/de/chilbi">Chilbi</a></div>
			<span class="date-display-single"><time datetime="2026-06-01T10:00:00+02:00">1. Juni</time></span>
		</div>
	</div>`

	ctx := testContext()
	ctx.Cms = model.CmsDrupal
	report := NewChain(nil, nil).Extract(html, ctx)

	require.Equal(t, MethodCMS, report.Best.Method)
	require.Len(t, report.Best.Events, 2)
	require.NotNil(t, report.Selectors)
	assert.Contains(t, report.Selectors.Container, "views-row")

	ev := report.Best.Events[0]
	assert.Equal(t, "Dorffest", ev.Title)
	assert.Equal(t, "Schulhausplatz", ev.Location)
	assert.Equal(t, "https://www.gemeinde.ch/de/dorffest", ev.URL)
	assert.True(t, zurichDate(2026, 5, 12, 19, 30).Equal(ev.StartDate), "got %v", ev.StartDate)

	chilbi := report.Best.Events[1]
	assert.True(t, zurichDate(2026, 6, 1, 10, 0).Equal(chilbi.StartDate), "datetime attribute wins, got %v", chilbi.StartDate)
	assert.Equal(t, "https://www.gemeinde.ch/de/chilbi", chilbi.URL)
}

// TestCMSStrategy_OverrideWithSelfToken verifies recorded selectors and "self"
func TestCMSStrategy_OverrideWithSelfToken(t *testing.T) {
	html := `<ul class="termine">
		<li><span class="when">03.07.2026</span> <span class="what">Bundesfeier</span></li>
		<li><span class="when">04.07.2026</span> <span class="what">Waldgang</span></li>
	</ul>`

	ctx := testContext()
	ctx.Selectors = &model.SelectorSet{Container: ".termine li", Title: ".missing, .what", Date: ".nothing, self"}

	out := (&cmsStrategy{catalog: cms.NewCatalog()}).Extract(parseDoc(t, html), ctx)
	require.Len(t, out.Events, 2)
	assert.Equal(t, "Bundesfeier", out.Events[0].Title)
	assert.True(t, zurichDate(2026, 7, 3, 0, 0).Equal(out.Events[0].StartDate))
	assert.Equal(t, ctx.Selectors, out.Selectors)
}

// TestJSONLDStrategy verifies graph, arrays, nested location and errors
func TestJSONLDStrategy(t *testing.T) {
	html := `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebPage","name":"Agenda"},
  {"@type":"MusicEvent","name":"Jazz im Park","startDate":"2026-06-20T19:00:00+02:00","endDate":"2026-06-20T22:00:00+02:00",
   "url":"/events/jazz","image":{"@type":"ImageObject","url":"https://cdn.gemeinde.ch/jazz.jpg"},
   "organizer":{"@type":"Organization","name":"Jazzverein"},
   "location":{"@type":"Place","name":"Stadtpark",
     "address":{"@type":"PostalAddress","streetAddress":"Parkweg 1","postalCode":"8000","addressLocality":"Zürich"},
     "geo":{"latitude":47.37,"longitude":"8.54"}},
   "offers":{"price":"25","priceCurrency":"CHF"}}
]}
</script>
<script type="application/ld+json">[{"@type":"Event","name":"Ohne Datum"},{"@type":"Event","name":"Märit","startDate":"2026-06-21","location":"Dorfplatz"}]</script>
<script type="application/ld+json">{ broken</script>
</head></html>`

	out := (&jsonLDStrategy{}).Extract(parseDoc(t, html), testContext())
	require.Len(t, out.Events, 2)
	assert.Len(t, out.Errors, 1)

	jazz := out.Events[0]
	assert.Equal(t, "Jazz im Park", jazz.Title)
	assert.True(t, time.Date(2026, 6, 20, 17, 0, 0, 0, time.UTC).Equal(jazz.StartDate))
	require.NotNil(t, jazz.EndDate)
	assert.True(t, time.Date(2026, 6, 20, 20, 0, 0, 0, time.UTC).Equal(*jazz.EndDate))
	assert.Equal(t, "https://www.gemeinde.ch/events/jazz", jazz.URL)
	assert.Equal(t, "https://cdn.gemeinde.ch/jazz.jpg", jazz.ImageURL)
	assert.Equal(t, "Jazzverein", jazz.Organizer)
	assert.Equal(t, "Stadtpark", jazz.VenueName)
	assert.Equal(t, "Stadtpark, Parkweg 1, 8000 Zürich", jazz.Location)
	assert.Equal(t, "MusicEvent", jazz.Category)
	assert.Equal(t, "CHF 25", jazz.Price)
	require.NotNil(t, jazz.Latitude)
	require.NotNil(t, jazz.Longitude)
	assert.InDelta(t, 47.37, *jazz.Latitude, 1e-9)
	assert.InDelta(t, 8.54, *jazz.Longitude, 1e-9)

	marit := out.Events[1]
	assert.Equal(t, "Märit", marit.Title)
	assert.Equal(t, "Dorfplatz", marit.Location)
	assert.True(t, zurichDate(2026, 6, 21, 0, 0).Equal(marit.StartDate))
}

// TestHasStructuredEvents verifies structured data detection
func TestHasStructuredEvents(t *testing.T) {
	assert.True(t, HasStructuredEvents(`<script type="application/ld+json">{"@type":["Event","Thing"],"name":"x"}</script>`))
	assert.False(t, HasStructuredEvents(`<script type="application/ld+json">{"@type":"Organization"}</script>`))
	assert.False(t, HasStructuredEvents(`<p>nothing</p>`))
}

// TestGenericStrategy verifies the generic selector list
func TestGenericStrategy(t *testing.T) {
	html := `<div class="termin-eintrag"><h3>Seniorenessen</h3><span class="datum">20.05.2026</span></div>`

	report := NewChain(nil, nil).Extract(html, testContext())
	assert.Equal(t, MethodGeneric, report.Best.Method)
	require.Len(t, report.Best.Events, 1)
	assert.Equal(t, "Seniorenessen", report.Best.Events[0].Title)
}

// TestListStrategy verifies list items with dates become events
func TestListStrategy(t *testing.T) {
	html := `<ul>
		<li><strong>Dorffest</strong> 12.05.2026, 18:00 Uhr | Ort: Schulhaus</li>
		<li><a href="/e/2">Altpapiersammlung</a> – 14.05.2026</li>
		<li><a href="/kontakt">Kontakt</a></li>
	</ul>`

	report := NewChain(nil, nil).Extract(html, testContext())
	assert.Equal(t, MethodList, report.Best.Method)
	assert.Equal(t, ConfidenceList, report.Best.Confidence)
	require.Len(t, report.Best.Events, 2)

	fest := report.Best.Events[0]
	assert.Equal(t, "Dorffest", fest.Title)
	assert.Equal(t, "Schulhaus", fest.Location)
	assert.True(t, zurichDate(2026, 5, 12, 18, 0).Equal(fest.StartDate), "got %v", fest.StartDate)

	assert.Equal(t, "Altpapiersammlung", report.Best.Events[1].Title)
	assert.Equal(t, "https://www.gemeinde.ch/e/2", report.Best.Events[1].URL)
}

// TestCardStrategy verifies card-like containers
func TestCardStrategy(t *testing.T) {
	html := `<div class="card"><h4>Kinderflohmarkt</h4><p>Samstag, 23.05.2026</p></div>`

	report := NewChain(nil, nil).Extract(html, testContext())
	assert.Equal(t, MethodCards, report.Best.Method)
	require.Len(t, report.Best.Events, 1)
	assert.Equal(t, "Kinderflohmarkt", report.Best.Events[0].Title)
}

// TestHeuristicStrategy verifies keyword and date scanning
func TestHeuristicStrategy(t *testing.T) {
	html := `<div class="content">
		<p>Herzliche Einladung zum Konzert am 03.10.2026 in der Kirche.</p>
		<p>Die Verwaltung bleibt am 05.10.2026 geschlossen.</p>
	</div>`

	report := NewChain(nil, nil).Extract(html, testContext())
	assert.Equal(t, MethodHeuristic, report.Best.Method)
	assert.Equal(t, ConfidenceHeuristic, report.Best.Confidence)
	require.Len(t, report.Best.Events, 1)
	assert.Contains(t, report.Best.Events[0].Title, "Konzert")
	assert.True(t, zurichDate(2026, 10, 3, 0, 0).Equal(report.Best.Events[0].StartDate))
}

// TestHeuristicStrategy_Compounds verifies German compounds ending in an
// event keyword are recognized
func TestHeuristicStrategy_Compounds(t *testing.T) {
	for _, title := range []string{"Flohmarkt", "Wochenmarkt", "Sommerfest", "Dorffest", "Kinderfest"} {
		t.Run(title, func(t *testing.T) {
			html := "<div><span>" + title + " auf dem Dorfplatz, 12.06.2026</span></div>"
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
			require.NoError(t, err)

			out := (&heuristicStrategy{}).Extract(doc, testContext())
			require.Len(t, out.Events, 1)
			assert.Contains(t, out.Events[0].Title, title)
			assert.True(t, zurichDate(2026, 6, 12, 0, 0).Equal(out.Events[0].StartDate))
		})
	}
}

// TestHasEventKeyword verifies keyword matching on word boundaries
func TestHasEventKeyword(t *testing.T) {
	assert.True(t, hasEventKeyword("Marché de Noël"))
	assert.True(t, hasEventKeyword("Grosser Flohmarkt"))
	assert.True(t, hasEventKeyword("Jahreskonzert der Musikgesellschaft"))
	assert.False(t, hasEventKeyword("Die Verwaltung bleibt geschlossen"))
}

// TestContextResolve verifies URL resolution order
func TestContextResolve(t *testing.T) {
	ctx := Context{PageURL: "https://www.gemeinde.ch/de/agenda/", BaseURL: "https://www.gemeinde.ch"}
	assert.Equal(t, "https://www.gemeinde.ch/de/agenda/fest", ctx.resolve("fest"))
	assert.Equal(t, "https://other.ch/x", ctx.resolve("https://other.ch/x"))

	ctx.PageURL = ""
	assert.Equal(t, "https://www.gemeinde.ch/fest", ctx.resolve("/fest"))
}
