package apisource

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/model"
)

// FieldHints lists extra aliases per logical field, tried before the
// built-in ones.
type FieldHints struct {
	Title       []string `json:"title,omitempty"`
	Start       []string `json:"start,omitempty"`
	End         []string `json:"end,omitempty"`
	Description []string `json:"description,omitempty"`
	Location    []string `json:"location,omitempty"`
	URL         []string `json:"url,omitempty"`
}

var (
	titleAliases       = []string{"title", "name", "subject", "event_name", "eventName", "titel", "label"}
	startAliases       = []string{"start_date", "startDate", "date", "event_date", "start", "dtstart", "datum", "begin", "start_time", "startTime"}
	endAliases         = []string{"end_date", "endDate", "end", "dtend", "end_time", "endTime"}
	descriptionAliases = []string{"description", "summary", "excerpt", "teaser", "body", "text", "beschreibung"}
	locationAliases    = []string{"location", "venue", "place", "address", "ort", "lieu"}
	urlAliases         = []string{"url", "link", "href", "permalink", "website"}
	organizerAliases   = []string{"organizer", "organiser", "veranstalter", "host"}
	categoryAliases    = []string{"category", "categories", "kategorie", "type"}
	priceAliases       = []string{"price", "cost", "preis"}
	imageAliases       = []string{"image", "image_url", "imageUrl", "thumbnail", "picture"}
	latAliases         = []string{"latitude", "lat"}
	lonAliases         = []string{"longitude", "lon", "lng"}
)

// nestedNameKeys resolve an object value to display text.
var nestedNameKeys = []string{"rendered", "name", "venue", "title", "label", "url", "address"}

func (a *Adapter) mapItem(obj map[string]any, hints FieldHints) (model.ExtractedEvent, bool) {
	title := plain(textField(obj, hints.Title, titleAliases))
	start, ok := a.dateField(obj, hints.Start, startAliases)
	if title == "" || !ok {
		return model.ExtractedEvent{}, false
	}

	ev := model.ExtractedEvent{
		Title:       title,
		StartDate:   start,
		Description: plain(textField(obj, hints.Description, descriptionAliases)),
		Location:    textField(obj, hints.Location, locationAliases),
		URL:         textField(obj, hints.URL, urlAliases),
		Organizer:   textField(obj, nil, organizerAliases),
		Category:    textField(obj, nil, categoryAliases),
		Price:       textField(obj, nil, priceAliases),
		ImageURL:    imageField(obj),
	}
	if end, ok := a.dateField(obj, hints.End, endAliases); ok {
		ev.EndDate = &end
	}
	if venue, ok := obj["venue"].(map[string]any); ok {
		ev.VenueName = textOf(venue)
	}
	lat, okLat := numField(obj, latAliases)
	lon, okLon := numField(obj, lonAliases)
	if okLat && okLon {
		ev.Latitude, ev.Longitude = &lat, &lon
	}

	ev.Clean()
	return ev, ev.Valid()
}

// textField returns the first alias with a non-empty value.
func textField(obj map[string]any, hinted, aliases []string) string {
	for _, key := range append(append([]string{}, hinted...), aliases...) {
		if s := textOf(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

// textOf flattens strings, numbers, nested objects and lists to text.
func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		for _, key := range nestedNameKeys {
			if s := textOf(t[key]); s != "" {
				return s
			}
		}
	case []any:
		var parts []string
		for _, item := range t {
			if s := textOf(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func imageField(obj map[string]any) string {
	for _, key := range imageAliases {
		switch t := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case map[string]any:
			if s := textOf(t["url"]); s != "" {
				return s
			}
		}
	}
	return ""
}

func (a *Adapter) dateField(obj map[string]any, hinted, aliases []string) (time.Time, bool) {
	for _, key := range append(append([]string{}, hinted...), aliases...) {
		switch t := obj[key].(type) {
		case string:
			if d, ok := a.parser.Parse(t); ok {
				return d, true
			}
		case float64:
			if d, ok := unixTime(t); ok {
				return d, true
			}
		case map[string]any:
			for _, inner := range []string{"date", "dateTime", "value"} {
				if s, ok := t[inner].(string); ok {
					if d, ok := a.parser.Parse(s); ok {
						return d, true
					}
				}
			}
		}
	}
	return time.Time{}, false
}

// unixTime interprets n as seconds, or milliseconds when it is too large
// to be seconds.
func unixTime(n float64) (time.Time, bool) {
	if n <= 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return time.Time{}, false
	}
	if n > 1e11 {
		return time.UnixMilli(int64(n)), true
	}
	return time.Unix(int64(n), 0), true
}

func numField(obj map[string]any, aliases []string) (float64, bool) {
	for _, key := range aliases {
		switch t := obj[key].(type) {
		case float64:
			return t, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// plain strips markup from HTML-bearing fields.
func plain(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
