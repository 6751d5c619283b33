package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/normalize"
)

// eventKeywords are folded terms that mark text as describing an event.
var eventKeywords = []string{
	"festival", "fest", "fete", "festa", "chilbi",
	"konzert", "concert", "concerto",
	"markt", "marit", "marche", "mercato",
	"versammlung", "assemblee", "assemblea", "meeting",
	"theater", "theatre", "teatro",
	"ausstellung", "exposition", "mostra", "vernissage",
	"lesung", "vortrag", "conference", "conferenza",
	"fuhrung", "visite", "apero", "brunch",
	"turnier", "tournoi", "torneo", "lauf", "course",
	"workshop", "kurs", "atelier", "corso",
	"veranstaltung", "anlass", "manifestation", "evenement", "evento", "event",
}

const heuristicScope = "div, p, li, article, section, tr, dd, span"

type heuristicStrategy struct{}

func (s *heuristicStrategy) Method() string      { return MethodHeuristic }
func (s *heuristicStrategy) Confidence() float64 { return ConfidenceHeuristic }

// Extract scans for the innermost elements whose text carries both a date
// and an event keyword.
func (s *heuristicStrategy) Extract(doc *goquery.Document, ctx Context) Outcome {
	r := fieldReader{ctx: ctx}
	p := ctx.parser()

	matches := func(el *goquery.Selection) bool {
		t := text(el)
		return t != "" && len(t) <= maxItemText && hasEventKeyword(t) && p.ContainsDate(t)
	}

	var out Outcome
	doc.Find(heuristicScope).Each(func(_ int, el *goquery.Selection) {
		if !matches(el) {
			return
		}
		inner := false
		el.Find(heuristicScope).EachWithBreak(func(_ int, child *goquery.Selection) bool {
			inner = matches(child)
			return !inner
		})
		if inner {
			return
		}
		if ev, ok := itemEvent(r, el); ok {
			out.Events = append(out.Events, ev)
		}
	})
	return out
}

// hasEventKeyword matches keywords at either end of a word, so German
// compounds such as Flohmarkt or Sommerfest count. Long keywords also
// match inside a word.
func hasEventKeyword(s string) bool {
	for _, word := range strings.FieldsFunc(normalize.Fold(s), isSeparator) {
		for _, kw := range eventKeywords {
			if strings.HasPrefix(word, kw) || strings.HasSuffix(word, kw) ||
				(len(kw) >= 7 && strings.Contains(word, kw)) {
				return true
			}
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r < 0x80
}
