// Package apisource reads events from machine-readable endpoints: JSON
// event APIs of arbitrary shape and RSS/Atom event feeds.
package apisource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/eventfed/dateparse"
	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/logger"
	"github.com/pevans/eventfed/model"
)

var (
	// ErrUnsupportedPayload is returned when a response is neither JSON nor
	// a feed.
	ErrUnsupportedPayload = errors.New("unsupported api payload")
)

const defaultTimeout = 20 * time.Second

// Adapter fetches an endpoint and maps its items to ExtractedEvents.
type Adapter struct {
	fetcher fetch.Fetcher
	parser  *dateparse.Parser
	log     logger.Logger

	// Timeout bounds each request.
	Timeout time.Duration
}

// New creates a new Adapter.
func New(f fetch.Fetcher, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		fetcher: f,
		parser:  dateparse.New(),
		log:     log,
		Timeout: defaultTimeout,
	}
}

// FetchAndMap fetches endpoint and returns every item that resolves to a
// title and a start date. Items lacking either are dropped silently.
func (a *Adapter) FetchAndMap(ctx context.Context, endpoint string, hints FieldHints) ([]model.ExtractedEvent, error) {
	resp, err := a.fetcher.Get(ctx, endpoint, fetch.Options{
		Timeout: a.Timeout,
		Headers: map[string]string{"Accept": "application/json, application/rss+xml, application/atom+xml;q=0.9, */*;q=0.5"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch api endpoint: %w", err)
	}

	events, err := a.Map(resp.Body, resp.ContentType, hints)
	if err != nil {
		return nil, err
	}

	a.log.Debug("api endpoint mapped",
		logger.String("url", endpoint),
		logger.Int("events", len(events)))
	return events, nil
}

// Map decodes body as JSON or, failing that, as an RSS/Atom feed.
func (a *Adapter) Map(body, contentType string, hints FieldHints) ([]model.ExtractedEvent, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, ErrUnsupportedPayload
	}

	if trimmed[0] == '{' || trimmed[0] == '[' || strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
		return a.mapJSON(v, hints), nil
	}

	if trimmed[0] == '<' || strings.Contains(contentType, "xml") {
		events, err := a.mapFeed(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
		}
		return events, nil
	}

	return nil, ErrUnsupportedPayload
}

// Probe reports whether endpoint answers with a payload containing at
// least one mappable event.
func (a *Adapter) Probe(ctx context.Context, endpoint string) bool {
	events, err := a.FetchAndMap(ctx, endpoint, FieldHints{})
	return err == nil && len(events) > 0
}

func (a *Adapter) mapJSON(v any, hints FieldHints) []model.ExtractedEvent {
	var events []model.ExtractedEvent
	for _, item := range items(v, 0) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if ev, ok := a.mapItem(obj, hints); ok {
			events = append(events, ev)
		}
	}
	return events
}

// collectionKeys hold the item list in wrapped responses.
var collectionKeys = []string{"events", "items", "results", "data", "entries", "veranstaltungen"}

// items finds the item list in a decoded payload: the value itself when it
// is an array, otherwise the first collection key, searched two levels deep.
func items(v any, depth int) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		if depth > 1 {
			return nil
		}
		for _, key := range collectionKeys {
			if inner, ok := t[key]; ok {
				if list := items(inner, depth+1); list != nil {
					return list
				}
			}
		}
	}
	return nil
}
