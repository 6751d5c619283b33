package extract

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/cms"
	"github.com/pevans/eventfed/model"
)

// cmsStrategy tries the site's recorded selectors, then the catalog
// variants for its CMS family, then the generic set. The first set that
// yields events wins.
type cmsStrategy struct {
	catalog *cms.Catalog
}

func (s *cmsStrategy) Method() string      { return MethodCMS }
func (s *cmsStrategy) Confidence() float64 { return ConfidenceCMS }

func (s *cmsStrategy) Extract(doc *goquery.Document, ctx Context) Outcome {
	for _, set := range s.catalog.SelectorsFor(ctx.Cms, ctx.Selectors) {
		events := fromContainers(doc.Selection, set, ctx)
		if len(events) > 0 {
			used := set
			return Outcome{Events: events, Selectors: &used}
		}
	}
	return Outcome{}
}

// genericContainers are tried in order; the first that yields an event
// wins.
var genericContainers = []string{
	`[itemtype*="schema.org/Event"]`,
	".vevent",
	".event-item",
	".events-item",
	".event",
	".veranstaltung",
	".agenda-item",
	".agenda-entry",
	".calendar-event",
	".evenement",
	".manifestation",
	".evento",
	`[class*="event"]`,
	`[class*="veranstaltung"]`,
	`[class*="agenda"]`,
	`[class*="termin"]`,
}

var genericFields = model.SelectorSet{
	Title:       `[itemprop=name], .summary, h2, h3, h4, .title, [class*=title], a, strong`,
	Date:        `[itemprop=startDate], .dtstart, time, .date, .datum, [class*=date], [class*=datum], self`,
	Location:    `[itemprop=location], .location, .ort, .lieu, .luogo, [class*=location], [class*=venue]`,
	Description: `[itemprop=description], .description, .teaser, .lead, p`,
	Organizer:   `[itemprop=organizer], .organizer, .veranstalter`,
	URL:         `[itemprop=url], h2 a, h3 a, a`,
}

type genericStrategy struct{}

func (s *genericStrategy) Method() string      { return MethodGeneric }
func (s *genericStrategy) Confidence() float64 { return ConfidenceGeneric }

func (s *genericStrategy) Extract(doc *goquery.Document, ctx Context) Outcome {
	for _, container := range genericContainers {
		set := genericFields
		set.Container = container
		if events := fromContainers(doc.Selection, set, ctx); len(events) > 0 {
			return Outcome{Events: events, Selectors: &set}
		}
	}
	return Outcome{}
}

const cardContainers = `[class*="card"], [class*="box"], [class*="panel"], [class*="tile"], [class*="widget"], [class*="teaser"]`

type cardStrategy struct{}

func (s *cardStrategy) Method() string      { return MethodCards }
func (s *cardStrategy) Confidence() float64 { return ConfidenceCards }

func (s *cardStrategy) Extract(doc *goquery.Document, ctx Context) Outcome {
	set := genericFields
	set.Container = cardContainers
	return Outcome{Events: fromContainers(doc.Selection, set, ctx)}
}

// fromContainers reads one event per container matched by set.Container.
// Alternatives are evaluated in order and the first producing events wins.
func fromContainers(root *goquery.Selection, set model.SelectorSet, ctx Context) []model.ExtractedEvent {
	r := fieldReader{ctx: ctx}
	for _, sel := range cms.Alternatives(set.Container) {
		var events []model.ExtractedEvent
		root.Find(sel).Each(func(_ int, c *goquery.Selection) {
			if ev, ok := r.event(c, set); ok {
				events = append(events, ev)
			}
		})
		if len(events) > 0 {
			return events
		}
	}
	return nil
}
