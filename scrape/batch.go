package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/logger"
	"github.com/pevans/eventfed/metrics"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/store"
)

// SiteScraper scrapes a single site and records failures on it.
type SiteScraper interface {
	Scrape(ctx context.Context, site model.Site) (SiteOutcome, error)
	MarkFailed(ctx context.Context, site model.Site, err error)
}

// DueLister selects the sites a batch works through.
type DueLister interface {
	SitesDueForScrape(ctx context.Context, q store.DueQuery) ([]model.Site, error)
}

// BatchConfig configures a Runner.
type BatchConfig struct {
	// PolitenessDelay is the pause between two sites.
	PolitenessDelay time.Duration
	// Freshness is how long a scrape stays current.
	Freshness     time.Duration
	HomeLatitude  float64
	HomeLongitude float64
}

// SiteResult is the outcome of one site within a batch.
type SiteResult struct {
	SiteID uuid.UUID          `json:"site_id"`
	Name   string             `json:"name"`
	Status model.ScrapeStatus `json:"status"`
	Events int                `json:"events"`
	Error  string             `json:"error,omitempty"`
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	RunID        uuid.UUID    `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	SuccessCount int          `json:"success_count"`
	FailedCount  int          `json:"failed_count"`
	TotalEvents  int          `json:"total_events"`
	Sites        []SiteResult `json:"sites"`
}

// Status is a snapshot of the runner.
type Status struct {
	Running   bool         `json:"running"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	Last      *BatchResult `json:"last,omitempty"`
}

// Runner executes batch scrapes. At most one batch runs at a time; a
// second request fails fast with ErrBatchInProgress instead of queueing.
type Runner struct {
	scraper SiteScraper
	sites   DueLister
	cfg     BatchConfig
	metrics *metrics.Metrics
	log     logger.Logger

	// slot is a single-slot semaphore held for the length of a batch.
	slot chan struct{}

	mu        sync.Mutex
	startedAt *time.Time
	last      *BatchResult
}

// NewRunner creates a new Runner.
func NewRunner(scraper SiteScraper, sites DueLister, cfg BatchConfig, m *metrics.Metrics, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		scraper: scraper,
		sites:   sites,
		cfg:     cfg,
		metrics: m,
		log:     log,
		slot:    make(chan struct{}, 1),
	}
}

// ScrapeBatch scrapes up to limit due sites within maxDistanceKm of the
// home point, strictly one after another with the politeness delay in
// between. A failing site is recorded and the batch moves on.
func (r *Runner) ScrapeBatch(ctx context.Context, limit int, maxDistanceKm float64) (BatchResult, error) {
	result, ok := r.begin()
	if !ok {
		return BatchResult{}, ErrBatchInProgress
	}
	return r.run(ctx, result, limit, maxDistanceKm)
}

// Start runs a batch in the background and returns its run id. Like
// ScrapeBatch it fails fast with ErrBatchInProgress. The result is
// available from Status once the batch finishes.
func (r *Runner) Start(ctx context.Context, limit int, maxDistanceKm float64) (uuid.UUID, error) {
	result, ok := r.begin()
	if !ok {
		return uuid.Nil, ErrBatchInProgress
	}
	go func() {
		if _, err := r.run(ctx, result, limit, maxDistanceKm); err != nil {
			r.log.Error("batch failed", logger.String("run_id", result.RunID.String()), logger.Error(err))
		}
	}()
	return result.RunID, nil
}

// begin claims the slot and stamps a new run.
func (r *Runner) begin() (BatchResult, bool) {
	select {
	case r.slot <- struct{}{}:
	default:
		return BatchResult{}, false
	}

	result := BatchResult{RunID: uuid.New(), StartedAt: time.Now()}
	r.setStarted(result.StartedAt)
	r.metrics.BatchStarted()
	return result, true
}

// run works through the batch and releases the slot.
func (r *Runner) run(ctx context.Context, result BatchResult, limit int, maxDistanceKm float64) (BatchResult, error) {
	defer func() { <-r.slot }()

	err := r.work(ctx, &result, limit, maxDistanceKm)

	result.FinishedAt = time.Now()
	r.metrics.BatchFinished(result.FinishedAt.Sub(result.StartedAt))
	r.finish(result)
	return result, err
}

func (r *Runner) work(ctx context.Context, result *BatchResult, limit int, maxDistanceKm float64) error {
	log := r.log.With(logger.String("run_id", result.RunID.String()))

	sites, err := r.sites.SitesDueForScrape(ctx, store.DueQuery{
		Limit:         limit,
		MaxDistanceKm: maxDistanceKm,
		HomeLatitude:  r.cfg.HomeLatitude,
		HomeLongitude: r.cfg.HomeLongitude,
		Freshness:     r.cfg.Freshness,
	})
	if err != nil {
		return fmt.Errorf("failed to list due sites: %w", err)
	}

	log.Info("batch started", logger.Int("sites", len(sites)))

	for i, site := range sites {
		if i > 0 {
			if err := r.pause(ctx); err != nil {
				log.Warn("batch interrupted", logger.Int("remaining", len(sites)-i), logger.Error(err))
				break
			}
		}

		sr := r.scrapeOne(ctx, site)
		result.Sites = append(result.Sites, sr)
		if sr.Status == model.StatusFailed {
			result.FailedCount++
		} else {
			result.SuccessCount++
			result.TotalEvents += sr.Events
		}
	}

	log.Info("batch finished",
		logger.Int("succeeded", result.SuccessCount),
		logger.Int("failed", result.FailedCount),
		logger.Int("events", result.TotalEvents))
	return nil
}

// scrapeOne isolates a site so that neither an error nor a panic escapes.
func (r *Runner) scrapeOne(ctx context.Context, site model.Site) (sr SiteResult) {
	sr = SiteResult{SiteID: site.ID, Name: site.Name}

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic while scraping: %v", p)
			r.log.Error("site scrape panicked", logger.String("site_id", site.ID.String()), logger.Error(err))
			r.scraper.MarkFailed(ctx, site, err)
			sr.Status = model.StatusFailed
			sr.Error = err.Error()
		}
	}()

	out, err := r.scraper.Scrape(ctx, site)
	if err != nil {
		sr.Status = model.StatusFailed
		sr.Error = err.Error()
		return sr
	}

	sr.Status = out.Status
	sr.Events = len(out.Events)
	return sr
}

// pause waits out the politeness delay unless ctx ends first.
func (r *Runner) pause(ctx context.Context) error {
	if r.cfg.PolitenessDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.cfg.PolitenessDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status returns whether a batch is running and the last finished result.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Running: r.startedAt != nil, StartedAt: r.startedAt, Last: r.last}
}

func (r *Runner) setStarted(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startedAt = &t
}

func (r *Runner) finish(result BatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startedAt = nil
	r.last = &result
}
