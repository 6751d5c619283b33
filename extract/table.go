package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/normalize"
)

type column int

const (
	colNone column = iota
	colDate
	colTitle
	colLocation
	colOrganizer
)

// headerTerms are folded header prefixes in the four national languages
// and English.
var headerTerms = map[column][]string{
	colDate:      {"datum", "date", "data", "wann", "quand", "quando", "zeit", "tag"},
	colTitle:     {"titel", "anlass", "veranstaltung", "event", "titre", "evenement", "manifestation", "titolo", "evento", "title", "was", "bezeichnung"},
	colLocation:  {"ort", "lieu", "luogo", "location", "venue", "wo", "ou", "dove", "lokal"},
	colOrganizer: {"veranstalter", "organisateur", "organizzatore", "organizer", "verein"},
}

// positional is the column order assumed for columns the header does not
// name.
var positional = []column{colDate, colTitle, colLocation, colOrganizer}

type tableStrategy struct{}

func (s *tableStrategy) Method() string      { return MethodTable }
func (s *tableStrategy) Confidence() float64 { return ConfidenceTable }

func (s *tableStrategy) Extract(doc *goquery.Document, ctx Context) Outcome {
	var out Outcome
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		out.Events = append(out.Events, s.table(table, ctx)...)
	})
	return out
}

func (s *tableStrategy) table(table *goquery.Selection, ctx Context) []model.ExtractedEvent {
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return nil
	}

	columns := mapHeader(rows.First().Find("th, td"))
	r := fieldReader{ctx: ctx}

	var events []model.ExtractedEvent
	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}

		var ev model.ExtractedEvent
		var dated bool
		cells.Each(func(i int, cell *goquery.Selection) {
			switch columnAt(columns, i) {
			case colDate:
				if start, end, ok := r.datesOf(cell); ok {
					ev.StartDate, ev.EndDate, dated = start, end, true
				}
			case colTitle:
				ev.Title = text(cell)
				if href := hrefOf(cell); href != "" {
					ev.URL = ctx.resolve(href)
				}
			case colLocation:
				ev.Location = text(cell)
			case colOrganizer:
				ev.Organizer = text(cell)
			}
		})
		if !dated {
			return
		}
		if ev.URL == "" {
			if href := hrefOf(row); href != "" {
				ev.URL = ctx.resolve(href)
			}
		}
		events = append(events, ev)
	})
	return events
}

// mapHeader assigns a column kind to each header cell. Recognized header
// terms claim their column; the remaining columns take the unclaimed kinds
// in positional order. A second header naming an already claimed kind is
// ignored.
func mapHeader(cells *goquery.Selection) []column {
	columns := make([]column, cells.Length())
	claimed := make([]bool, cells.Length())
	cells.Each(func(i int, cell *goquery.Selection) {
		label := normalize.Fold(text(cell))
		for _, kind := range positional {
			if !hasHeaderTerm(label, headerTerms[kind]) {
				continue
			}
			claimed[i] = true
			if !contains(columns, kind) {
				columns[i] = kind
			}
			return
		}
	})

	var free []column
	for _, kind := range positional {
		if !contains(columns, kind) {
			free = append(free, kind)
		}
	}
	for i := range columns {
		if claimed[i] || len(free) == 0 {
			continue
		}
		columns[i] = free[0]
		free = free[1:]
	}
	return columns
}

func hasHeaderTerm(label string, terms []string) bool {
	for _, word := range strings.Fields(label) {
		for _, term := range terms {
			if strings.HasPrefix(word, term) {
				return true
			}
		}
	}
	return false
}

func columnAt(columns []column, i int) column {
	if i < len(columns) {
		return columns[i]
	}
	return colNone
}

func contains(columns []column, kind column) bool {
	for _, c := range columns {
		if c == kind {
			return true
		}
	}
	return false
}
