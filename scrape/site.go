package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/eventfed/apisource"
	"github.com/pevans/eventfed/cms"
	"github.com/pevans/eventfed/dateparse"
	"github.com/pevans/eventfed/extract"
	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/logger"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/normalize"
	"github.com/pevans/eventfed/render"
	"github.com/pevans/eventfed/store"
)

// MethodAPI tags events that came from an API endpoint or feed.
const MethodAPI = "api"

// extraction is what the fetch and extract stages produced for a site.
type extraction struct {
	events    []model.ExtractedEvent
	method    string
	selectors *model.SelectorSet
	cms       model.CmsType
	headless  bool
}

// SiteOutcome is what a successful scrape produced.
type SiteOutcome struct {
	Events []model.ExtractedEvent
	Status model.ScrapeStatus
	Method string
}

// ScrapeSite extracts the current events of site and persists those inside
// the event window. The site record is updated with the outcome either way;
// on failure it is marked failed with the error message and the error is
// returned.
func (s *Service) ScrapeSite(ctx context.Context, site model.Site) ([]model.ExtractedEvent, error) {
	out, err := s.Scrape(ctx, site)
	if err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Scrape is ScrapeSite that also reports the status recorded on the site
// and the extraction method.
func (s *Service) Scrape(ctx context.Context, site model.Site) (SiteOutcome, error) {
	log := s.siteLogger(site)
	started := time.Now()

	x, err := s.extract(ctx, site, log)
	if err == nil {
		err = s.persist(ctx, site, x, log)
	}
	if err != nil {
		s.markFailed(ctx, site, err, log)
		s.metrics.RecordScrape(string(model.StatusFailed), time.Since(started))
		return SiteOutcome{Status: model.StatusFailed}, err
	}

	status := x.status()
	s.metrics.RecordScrape(string(status), time.Since(started))
	log.Info("site scraped",
		logger.String("method", x.method),
		logger.String("status", string(status)),
		logger.Int("events", len(x.events)))
	return SiteOutcome{Events: x.events, Status: status, Method: x.method}, nil
}

// MarkFailed records err as the site's scrape failure.
func (s *Service) MarkFailed(ctx context.Context, site model.Site, err error) {
	s.markFailed(ctx, site, err, s.siteLogger(site))
}

func (s *Service) markFailed(ctx context.Context, site model.Site, cause error, log logger.Logger) {
	log.Warn("scrape failed", logger.Error(cause))
	err := s.store.UpdateSiteAfterScrape(ctx, site.ID, store.ScrapeOutcome{
		Status:    model.StatusFailed,
		Error:     cause.Error(),
		ScrapedAt: s.now(),
	})
	if err != nil {
		log.Error("failed to record scrape failure", logger.Error(err))
	}
}

func (x extraction) status() model.ScrapeStatus {
	if x.headless {
		return model.StatusHeadlessActive
	}
	return model.StatusActive
}

// extract runs the API attempt, then the static fetch with an optional
// headless render, then the strategy chain.
func (s *Service) extract(ctx context.Context, site model.Site, log logger.Logger) (extraction, error) {
	if site.APIEndpoint != "" {
		events, err := s.api.FetchAndMap(ctx, site.APIEndpoint, apisource.FieldHints{})
		if err == nil && s.usable(events, site) > 0 {
			return extraction{events: events, method: MethodAPI, cms: site.CmsType}, nil
		}
		if err != nil {
			log.Warn("api attempt failed, falling back to page",
				logger.String("endpoint", site.APIEndpoint),
				logger.Error(err))
		} else {
			log.Info("api endpoint returned no usable events, falling back to page",
				logger.String("endpoint", site.APIEndpoint),
				logger.Int("events", len(events)))
		}
	}

	if site.EventPageURL == "" {
		return extraction{}, ErrNoEventPage
	}

	resp, err := s.fetcher.Get(ctx, site.EventPageURL, fetch.Options{Timeout: s.cfg.PageTimeout})
	if err != nil {
		return extraction{}, fmt.Errorf("failed to fetch event page: %w", err)
	}

	html := resp.Body
	headless := false
	if site.RequiresJavascript || render.NeedsJavaScript(html) {
		if rendered, ok := s.render(ctx, site.EventPageURL, log); ok {
			html = rendered
			headless = true
		}
	}

	family := site.CmsType
	if family == "" || family == model.CmsUnknown {
		family = cms.Detect(html, site.EventPageURL)
	}

	report := s.chain.Extract(html, extract.Context{
		PageURL:    site.EventPageURL,
		BaseURL:    site.WebsiteURL,
		Cms:        family,
		Selectors:  site.EventSelectors,
		DateFormat: dateparse.ParseFormat(site.DateFormat),
	})
	s.recordAttempts(report)

	if !report.Found() {
		if len(report.Best.Errors) > 0 {
			return extraction{}, fmt.Errorf("%w: %s", ErrNoEvents, strings.Join(report.Best.Errors, "; "))
		}
		return extraction{}, ErrNoEvents
	}

	return extraction{
		events:    report.Best.Events,
		method:    report.Best.Method,
		selectors: report.Selectors,
		cms:       family,
		headless:  headless,
	}, nil
}

// usable counts the events that would survive normalization.
func (s *Service) usable(events []model.ExtractedEvent, site model.Site) int {
	siteCtx := normalize.SiteContext{SiteID: site.ID.String(), Municipal: true}
	n := 0
	for _, ev := range events {
		if _, ok := s.normalizer.Normalize(ev, siteCtx); ok {
			n++
		}
	}
	return n
}

// render runs the headless fallback. Any failure leaves the caller with
// the static HTML it already holds.
func (s *Service) render(ctx context.Context, pageURL string, log logger.Logger) (string, bool) {
	html, err := s.renderer.Render(ctx, pageURL, s.cfg.RenderTimeout)
	switch {
	case errors.Is(err, render.ErrDisabled):
		s.metrics.RecordRender("disabled")
		return "", false
	case err != nil:
		s.metrics.RecordRender("error")
		log.Warn("headless render failed, using static html", logger.Error(err))
		return "", false
	}
	s.metrics.RecordRender("ok")
	return html, true
}

func (s *Service) recordAttempts(report extract.Report) {
	for _, a := range report.Attempts {
		outcome := "empty"
		switch {
		case a.Skipped:
			outcome = "skipped"
		case a.Events > 0 && a.Method == report.Best.Method:
			outcome = "won"
		case a.Events > 0:
			outcome = "events"
		case len(a.Errors) > 0:
			outcome = "error"
		}
		s.metrics.RecordStrategy(a.Method, outcome, a.Duration)
	}
}

// persist normalizes, geocodes and stores the events, then records the
// successful scrape on the site.
func (s *Service) persist(ctx context.Context, site model.Site, x extraction, log logger.Logger) error {
	siteCtx := normalize.SiteContext{
		SiteID:    site.ID.String(),
		Latitude:  site.Latitude,
		Longitude: site.Longitude,
		Municipal: true,
		Source:    x.method,
	}

	var created, updated, filtered int
	for _, ev := range x.events {
		pe, ok := s.normalizer.Normalize(ev, siteCtx)
		if !ok {
			filtered++
			continue
		}
		s.locate(ctx, site, &pe)

		isNew, err := s.store.UpsertEvent(ctx, pe)
		if err != nil {
			return fmt.Errorf("failed to persist event %q: %w", pe.Title, err)
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	s.metrics.RecordEvents("created", created)
	s.metrics.RecordEvents("updated", updated)
	s.metrics.RecordEvents("filtered", filtered)
	log.Debug("events persisted",
		logger.Int("created", created),
		logger.Int("updated", updated),
		logger.Int("filtered", filtered))

	outcome := store.ScrapeOutcome{
		Status:     x.status(),
		Selectors:  x.selectors,
		CmsType:    x.cms,
		EventCount: created + updated,
		ScrapedAt:  s.now(),
	}
	if x.headless {
		headless := true
		outcome.RequiresJavascript = &headless
	}
	if err := s.store.UpdateSiteAfterScrape(ctx, site.ID, outcome); err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	return nil
}

// locate fills in missing coordinates from the geocoder, or from the site
// itself when the venue cannot be resolved.
func (s *Service) locate(ctx context.Context, site model.Site, ev *model.PersistedEvent) {
	if ev.Latitude != nil && ev.Longitude != nil {
		return
	}

	if s.geocoder != nil {
		address := ev.Location
		if address == "" {
			address = ev.VenueName
		}
		if address != "" {
			if lat, lon, ok := s.geocoder.Lookup(ctx, address+", "+site.Name); ok {
				ev.Latitude, ev.Longitude = &lat, &lon
				return
			}
		}
	}

	lat, lon := site.Latitude, site.Longitude
	ev.Latitude, ev.Longitude = &lat, &lon
}
