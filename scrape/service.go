// Package scrape drives discovery and extraction for municipality sites:
// finding a site's events page, scraping it into stored events, and
// running batches of scrapes one site at a time.
package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/apisource"
	"github.com/pevans/eventfed/candidates"
	"github.com/pevans/eventfed/cms"
	"github.com/pevans/eventfed/extract"
	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/logger"
	"github.com/pevans/eventfed/metrics"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/normalize"
	"github.com/pevans/eventfed/render"
	"github.com/pevans/eventfed/store"
)

// Custom errors for scrape operations
var (
	ErrBatchInProgress = errors.New("batch scrape already in progress")
	ErrNoWebsite       = errors.New("site has no website URL")
	ErrNoEventPage     = errors.New("site has no event page or API endpoint")
	ErrNoEvents        = errors.New("no events found")
)

// Store is the persistence the orchestrator writes to.
type Store interface {
	UpdateSiteDiscovery(ctx context.Context, id uuid.UUID, d store.Discovery) error
	UpdateSiteAfterScrape(ctx context.Context, id uuid.UUID, o store.ScrapeOutcome) error
	UpsertEvent(ctx context.Context, ev model.PersistedEvent) (bool, error)
}

// Geocoder resolves an address. It never fails; ok is false when the
// address could not be resolved.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (lat, lon float64, ok bool)
}

// Config holds the per-operation timeouts.
type Config struct {
	// PageTimeout bounds homepage and event page loads.
	PageTimeout time.Duration
	// ProbeTimeout bounds each candidate verification.
	ProbeTimeout time.Duration
	// APITimeout bounds API and feed requests.
	APITimeout time.Duration
	// RenderTimeout bounds a headless render.
	RenderTimeout time.Duration
	// MaxCandidates caps the candidates verified per discovery.
	MaxCandidates int
}

// DefaultConfig returns the default timeouts.
func DefaultConfig() Config {
	return Config{
		PageTimeout:   30 * time.Second,
		ProbeTimeout:  10 * time.Second,
		APITimeout:    20 * time.Second,
		RenderTimeout: 45 * time.Second,
		MaxCandidates: candidates.DefaultMaxCandidates,
	}
}

// Deps are the collaborators of a Service. Fetcher and Store are
// required; the rest may be nil.
type Deps struct {
	Fetcher  fetch.Fetcher
	Store    Store
	Renderer render.Renderer
	Geocoder Geocoder
	Metrics  *metrics.Metrics
	Catalog  *cms.Catalog
	// Now is the clock used for the event window and timestamps.
	Now func() time.Time
}

// Service discovers event pages and scrapes sites.
type Service struct {
	fetcher    fetch.Fetcher
	store      Store
	renderer   render.Renderer
	geocoder   Geocoder
	metrics    *metrics.Metrics
	discoverer *candidates.Discoverer
	chain      *extract.Chain
	api        *apisource.Adapter
	normalizer *normalize.Normalizer
	now        func() time.Time
	cfg        Config
	log        logger.Logger
}

// NewService creates a new Service.
func NewService(cfg Config, deps Deps, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaults.PageTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaults.ProbeTimeout
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = defaults.APITimeout
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = defaults.RenderTimeout
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaults.MaxCandidates
	}

	renderer := deps.Renderer
	if renderer == nil {
		renderer = render.Disabled{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	discoverer := candidates.NewDiscoverer(deps.Fetcher, log)
	discoverer.MaxCandidates = cfg.MaxCandidates
	discoverer.ProbeTimeout = cfg.ProbeTimeout

	api := apisource.New(deps.Fetcher, log)
	api.Timeout = cfg.APITimeout

	return &Service{
		fetcher:    deps.Fetcher,
		store:      deps.Store,
		renderer:   renderer,
		geocoder:   deps.Geocoder,
		metrics:    deps.Metrics,
		discoverer: discoverer,
		chain:      extract.NewChain(deps.Catalog, log),
		api:        api,
		normalizer: &normalize.Normalizer{Now: now},
		now:        now,
		cfg:        cfg,
		log:        log,
	}
}

func (s *Service) siteLogger(site model.Site) logger.Logger {
	return s.log.With(
		logger.String("site_id", site.ID.String()),
		logger.String("site", site.Name))
}
