package apisource

import (
	"fmt"

	"github.com/mmcdole/gofeed"
	"github.com/pevans/eventfed/model"
)

// mapFeed reads an RSS or Atom feed. The start date comes from the RSS
// event module (ev:startdate) when present, otherwise from dates in the
// item title or description. Publication dates are never used as event
// dates.
func (a *Adapter) mapFeed(body string) ([]model.ExtractedEvent, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var events []model.ExtractedEvent
	for _, item := range feed.Items {
		if ev, ok := a.mapFeedItem(item); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (a *Adapter) mapFeedItem(item *gofeed.Item) (model.ExtractedEvent, bool) {
	ev := model.ExtractedEvent{
		Title:       plain(item.Title),
		Description: plain(item.Description),
		URL:         item.Link,
		Location:    eventExt(item, "location"),
		Organizer:   eventExt(item, "organizer"),
		Category:    eventExt(item, "type"),
	}
	if len(item.Categories) > 0 && ev.Category == "" {
		ev.Category = item.Categories[0]
	}
	if item.Image != nil {
		ev.ImageURL = item.Image.URL
	}

	if start, ok := a.parser.Parse(eventExt(item, "startdate")); ok {
		ev.StartDate = start
		if end, ok := a.parser.Parse(eventExt(item, "enddate")); ok {
			ev.EndDate = &end
		}
	} else if start, end, ok := a.parser.Range(item.Title + " " + ev.Description); ok {
		ev.StartDate, ev.EndDate = start, end
	}

	ev.Clean()
	return ev, ev.Valid()
}

// eventExt returns the value of an ev: namespace element.
func eventExt(item *gofeed.Item, name string) string {
	ns, ok := item.Extensions["ev"]
	if !ok {
		return ""
	}
	values := ns[name]
	if len(values) == 0 {
		return ""
	}
	return values[0].Value
}
