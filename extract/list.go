package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/model"
)

const (
	// maxItemText skips list items that wrap whole page sections.
	maxItemText = 1500

	maxFallbackTitle = 120

	itemTitle = "h2, h3, h4, h5, .title, strong, b, a"
)

type listStrategy struct{}

func (s *listStrategy) Method() string      { return MethodList }
func (s *listStrategy) Confidence() float64 { return ConfidenceList }

func (s *listStrategy) Extract(doc *goquery.Document, ctx Context) Outcome {
	r := fieldReader{ctx: ctx}
	var out Outcome
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if ev, ok := itemEvent(r, li); ok {
			out.Events = append(out.Events, ev)
		}
	})
	return out
}

// itemEvent reads an event from a loosely structured element: the date from
// anywhere in its text, the title from its first heading, emphasis or link
// that is not itself just a date.
func itemEvent(r fieldReader, el *goquery.Selection) (model.ExtractedEvent, bool) {
	body := text(el)
	if body == "" || len(body) > maxItemText {
		return model.ExtractedEvent{}, false
	}

	start, end, ok := r.datesOf(el)
	if !ok {
		return model.ExtractedEvent{}, false
	}

	ev := model.ExtractedEvent{
		Title:     itemTitleOf(r, el, body),
		StartDate: start,
		EndDate:   end,
		Location:  labelled(body, locationLabels),
		URL:       r.link(el, "a"),
	}
	ev.Clean()
	return ev, ev.Valid()
}

func itemTitleOf(r fieldReader, el *goquery.Selection, body string) string {
	var title string
	el.Find(itemTitle).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := text(s)
		if t != "" && !r.ctx.parser().ContainsDate(t) {
			title = t
			return false
		}
		return true
	})
	if title != "" {
		return title
	}
	return stripDates(r, body)
}

// stripDates returns the first separator-delimited part of body that holds
// no date. Without one, the start of body serves as the title.
func stripDates(r fieldReader, body string) string {
	parts := strings.FieldsFunc(body, func(r rune) bool {
		return r == '|' || r == '–' || r == '·' || r == '\n'
	})
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "-:,")
		if p != "" && !r.ctx.parser().ContainsDate(p) {
			return strings.TrimSpace(p)
		}
	}
	if runes := []rune(body); len(runes) > maxFallbackTitle {
		return string(runes[:maxFallbackTitle])
	}
	return body
}

var locationLabels = []string{"Ort:", "Lieu:", "Luogo:", "Location:", "Treffpunkt:", "Venue:"}

// labelled returns the text following the first label found, up to the next
// separator.
func labelled(body string, labels []string) string {
	lower := strings.ToLower(body)
	for _, label := range labels {
		idx := strings.Index(lower, strings.ToLower(label))
		if idx < 0 || idx+len(label) > len(body) {
			continue
		}
		rest := strings.TrimSpace(body[idx+len(label):])
		if cut := strings.IndexAny(rest, "|;\n"); cut >= 0 {
			rest = rest[:cut]
		}
		return strings.TrimSpace(rest)
	}
	return ""
}
