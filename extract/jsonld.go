package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/model"
)

type jsonLDStrategy struct{}

func (s *jsonLDStrategy) Method() string      { return MethodJSONLD }
func (s *jsonLDStrategy) Confidence() float64 { return ConfidenceJSONLD }

func (s *jsonLDStrategy) Extract(doc *goquery.Document, ctx Context) Outcome {
	var out Outcome
	for i, raw := range jsonLDBlocks(doc) {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("json-ld block %d: %v", i, err))
			continue
		}
		for _, node := range eventNodes(v) {
			if ev, ok := mapJSONLDEvent(node, ctx); ok {
				out.Events = append(out.Events, ev)
			}
		}
	}
	return out
}

// HasStructuredEvents reports whether the page embeds at least one
// Schema.org Event node.
func HasStructuredEvents(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, raw := range jsonLDBlocks(doc) {
		var v any
		if json.Unmarshal([]byte(raw), &v) == nil && len(eventNodes(v)) > 0 {
			return true
		}
	}
	return false
}

func jsonLDBlocks(doc *goquery.Document) []string {
	var blocks []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if raw := strings.TrimSpace(s.Text()); raw != "" {
			blocks = append(blocks, raw)
		}
	})
	return blocks
}

// eventNodes walks arrays and @graph containers and returns every object
// typed as an Event.
func eventNodes(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = append(out, eventNodes(item)...)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			out = append(out, eventNodes(graph)...)
		}
		if isEventType(t["@type"]) {
			out = append(out, t)
		}
	}
	return out
}

func isEventType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.HasSuffix(t, "Event") || t == "Festival"
	case []any:
		for _, item := range t {
			if isEventType(item) {
				return true
			}
		}
	}
	return false
}

func mapJSONLDEvent(node map[string]any, ctx Context) (model.ExtractedEvent, bool) {
	name := str(node["name"])
	startRaw := str(node["startDate"])
	if name == "" || startRaw == "" {
		return model.ExtractedEvent{}, false
	}
	start, ok := ctx.parser().Parse(startRaw)
	if !ok {
		return model.ExtractedEvent{}, false
	}

	ev := model.ExtractedEvent{
		Title:       name,
		Description: str(node["description"]),
		StartDate:   start,
		URL:         urlOf(node["url"]),
		ImageURL:    urlOf(node["image"]),
		Organizer:   nameOrURL(node["organizer"]),
	}
	if ev.URL != "" {
		ev.URL = ctx.resolve(ev.URL)
	}
	if ev.ImageURL != "" {
		ev.ImageURL = ctx.resolve(ev.ImageURL)
	}
	if endRaw := str(node["endDate"]); endRaw != "" {
		if end, ok := ctx.parser().Parse(endRaw); ok {
			ev.EndDate = &end
		}
	}
	if t, ok := node["@type"].(string); ok && t != "Event" {
		ev.Category = t
	}

	mapLocation(&ev, node["location"])
	ev.Price = offerPrice(node["offers"])

	ev.Clean()
	return ev, ev.Valid()
}

func mapLocation(ev *model.ExtractedEvent, v any) {
	switch loc := v.(type) {
	case string:
		ev.Location = loc
	case []any:
		if len(loc) > 0 {
			mapLocation(ev, loc[0])
		}
	case map[string]any:
		ev.VenueName = str(loc["name"])
		addr := address(loc["address"])
		switch {
		case ev.VenueName != "" && addr != "":
			ev.Location = ev.VenueName + ", " + addr
		case addr != "":
			ev.Location = addr
		default:
			ev.Location = ev.VenueName
		}
		if geo, ok := loc["geo"].(map[string]any); ok {
			lat, okLat := num(geo["latitude"])
			lon, okLon := num(geo["longitude"])
			if okLat && okLon {
				ev.Latitude, ev.Longitude = &lat, &lon
			}
		}
	}
}

func address(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case map[string]any:
		var parts []string
		if street := str(a["streetAddress"]); street != "" {
			parts = append(parts, street)
		}
		locality := strings.TrimSpace(str(a["postalCode"]) + " " + str(a["addressLocality"]))
		if locality != "" {
			parts = append(parts, locality)
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func offerPrice(v any) string {
	switch o := v.(type) {
	case []any:
		if len(o) > 0 {
			return offerPrice(o[0])
		}
	case map[string]any:
		price := str(o["price"])
		if price == "" {
			return ""
		}
		if cur := str(o["priceCurrency"]); cur != "" {
			return cur + " " + price
		}
		return price
	}
	return ""
}

// nameOrURL flattens a value that may be a string, an object with a name or
// url member, or a list of either.
func nameOrURL(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s := nameOrURL(item); s != "" {
				return s
			}
		}
	case map[string]any:
		if s := str(t["name"]); s != "" {
			return s
		}
		return str(t["url"])
	}
	return ""
}

// urlOf is nameOrURL preferring the url member.
func urlOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if s := urlOf(item); s != "" {
				return s
			}
		}
	case map[string]any:
		if s := str(t["url"]); s != "" {
			return s
		}
		return str(t["contentUrl"])
	}
	return ""
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
