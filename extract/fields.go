package extract

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/cms"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/normalize"
)

// fieldReader pulls event fields out of a container using a selector set.
type fieldReader struct {
	ctx Context
}

// first returns the first non-empty text matched by the alternation.
func (r fieldReader) first(container *goquery.Selection, alternatives string) string {
	for _, sel := range cms.Alternatives(alternatives) {
		if sel == cms.SelfToken {
			if t := text(container); t != "" {
				return t
			}
			continue
		}
		var found string
		container.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = text(s)
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// dates resolves start and end from the date alternation, preferring
// machine-readable attributes over visible text.
func (r fieldReader) dates(container *goquery.Selection, alternatives string) (time.Time, *time.Time, bool) {
	for _, sel := range cms.Alternatives(alternatives) {
		matches := container
		if sel != cms.SelfToken {
			matches = container.Find(sel)
		}

		var (
			start time.Time
			end   *time.Time
			ok    bool
		)
		matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			start, end, ok = r.datesOf(s)
			return !ok
		})
		if ok {
			return start, end, true
		}
	}
	return time.Time{}, nil, false
}

func (r fieldReader) datesOf(s *goquery.Selection) (time.Time, *time.Time, bool) {
	var stamps []time.Time
	collect := func(v string) {
		if t, ok := r.ctx.parser().ParseWithHint(v, r.ctx.DateFormat); ok {
			stamps = append(stamps, t)
		}
	}

	for _, attr := range []string{"datetime", "content"} {
		if v, ok := s.Attr(attr); ok {
			collect(v)
		}
	}
	s.Find("time[datetime], [itemprop=startDate][content], [itemprop=endDate][content]").Each(func(_ int, t *goquery.Selection) {
		if v, ok := t.Attr("datetime"); ok {
			collect(v)
			return
		}
		collect(t.AttrOr("content", ""))
	})

	if len(stamps) > 0 {
		start := stamps[0]
		if len(stamps) > 1 && stamps[len(stamps)-1].After(start) {
			end := stamps[len(stamps)-1]
			return start, &end, true
		}
		return start, nil, true
	}

	return r.ctx.parser().Range(text(s))
}

// link returns the resolved href of the first anchor matched by the
// alternation, or of the container itself.
func (r fieldReader) link(container *goquery.Selection, alternatives string) string {
	for _, sel := range cms.Alternatives(alternatives) {
		var s *goquery.Selection
		if sel == cms.SelfToken {
			s = container
		} else {
			s = container.Find(sel).First()
		}
		if href := hrefOf(s); href != "" {
			return r.ctx.resolve(href)
		}
	}
	if href := hrefOf(container); href != "" {
		return r.ctx.resolve(href)
	}
	return ""
}

func (r fieldReader) image(container *goquery.Selection) string {
	img := container.Find("img[src]").First()
	if img.Length() == 0 {
		return ""
	}
	return r.ctx.resolve(img.AttrOr("src", ""))
}

// event reads a full event from a container. The second return value is
// false when no title or start date could be resolved.
func (r fieldReader) event(container *goquery.Selection, set model.SelectorSet) (model.ExtractedEvent, bool) {
	start, end, ok := r.dates(container, set.Date)
	if !ok {
		start, end, ok = r.ctx.parser().Range(text(container))
	}
	if !ok {
		return model.ExtractedEvent{}, false
	}

	ev := model.ExtractedEvent{
		Title:       r.first(container, set.Title),
		StartDate:   start,
		EndDate:     end,
		Location:    r.first(container, set.Location),
		Description: r.first(container, set.Description),
		Organizer:   r.first(container, set.Organizer),
		URL:         r.link(container, set.URL),
		ImageURL:    r.image(container),
	}
	if ev.Description == ev.Title {
		ev.Description = ""
	}
	ev.Clean()
	return ev, ev.Valid()
}

// hrefOf returns the href of s when it is an anchor, otherwise of its first
// descendant anchor.
func hrefOf(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	if href, ok := s.Attr("href"); ok && usableHref(href) {
		return href
	}
	var found string
	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href := a.AttrOr("href", ""); usableHref(href) {
			found = href
			return false
		}
		return true
	})
	return found
}

func usableHref(href string) bool {
	href = strings.TrimSpace(strings.ToLower(href))
	return href != "" && !strings.HasPrefix(href, "#") &&
		!strings.HasPrefix(href, "javascript:") && !strings.HasPrefix(href, "mailto:")
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// resolve makes href absolute against the event page, falling back to the
// site base.
func (c Context) resolve(href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	for _, b := range []string{c.PageURL, c.BaseURL} {
		base, err := url.Parse(b)
		if err == nil && base.IsAbs() {
			return base.ResolveReference(ref).String()
		}
	}
	return href
}

// dedupe drops repeated (title, start) pairs, keeping the first.
func dedupe(events []model.ExtractedEvent) []model.ExtractedEvent {
	seen := make(map[string]bool, len(events))
	out := events[:0]
	for _, ev := range events {
		key := normalize.NormalizeTitle(ev.Title) + "|" + ev.StartDate.UTC().Format(time.RFC3339)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ev)
	}
	return out
}
