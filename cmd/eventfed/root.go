package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pevans/eventfed/config"
	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/geocode"
	"github.com/pevans/eventfed/logger"
	"github.com/pevans/eventfed/metrics"
	"github.com/pevans/eventfed/render"
	"github.com/pevans/eventfed/scrape"
	"github.com/pevans/eventfed/store"
	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug forces debug logging.
	debug bool

	rootCmd = &cobra.Command{
		Use:           "eventfed",
		Short:         "Discover and scrape municipal event pages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env file early so environment variables are available
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.eventfed/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(sitesCommand())
	rootCmd.AddCommand(discoverCommand())
	rootCmd.AddCommand(scrapeCommand())
	rootCmd.AddCommand(batchCommand())
	rootCmd.AddCommand(serveCommand())
}

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	store   *store.Store
	metrics *metrics.Metrics
	service *scrape.Service
	runner  *scrape.Runner
}

// newApp loads the configuration and wires every component.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	st, err := store.Open(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	m := metrics.NewDefault()

	fetcher := fetch.NewClient(fetch.Config{
		UserAgent:       cfg.Scraper.UserAgent,
		PolitenessDelay: cfg.Scraper.PolitenessDelay,
		Timeout:         cfg.Scraper.PageTimeout,
		RespectRobots:   cfg.Scraper.RespectRobots,
	}, log)

	var renderer render.Renderer = render.Disabled{}
	if cfg.Headless.Enabled {
		renderer = render.NewChromeRenderer(render.Config{
			ExecPath:  cfg.Headless.ExecPath,
			UserAgent: cfg.Scraper.UserAgent,
		}, log)
	}

	geocoder := newGeocoder(cfg, st, log)

	service := scrape.NewService(scrape.Config{
		PageTimeout:   cfg.Scraper.PageTimeout,
		ProbeTimeout:  cfg.Scraper.ProbeTimeout,
		APITimeout:    cfg.Scraper.APITimeout,
		RenderTimeout: cfg.Scraper.RenderTimeout,
		MaxCandidates: cfg.Scraper.MaxCandidates,
	}, scrape.Deps{
		Fetcher:  fetcher,
		Store:    st,
		Renderer: renderer,
		Geocoder: geocoder,
		Metrics:  m,
	}, log)

	runner := scrape.NewRunner(service, st, scrape.BatchConfig{
		PolitenessDelay: cfg.Scraper.PolitenessDelay,
		Freshness:       cfg.Scraper.Freshness,
		HomeLatitude:    cfg.Batch.HomeLatitude,
		HomeLongitude:   cfg.Batch.HomeLongitude,
	}, m, log)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		metrics: m,
		service: service,
		runner:  runner,
	}, nil
}

// Close releases the store and flushes the logger.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store", logger.Error(err))
	}
	_ = a.log.Sync()
}

// newGeocoder creates the venue geocoder on its own client. Geocoding
// requests skip robots.txt; the geocoder applies its own rate limit.
func newGeocoder(cfg *config.Config, cache geocode.Cache, log logger.Logger) *geocode.Geocoder {
	userAgent := cfg.Geocoder.UserAgent
	if userAgent == "" {
		userAgent = cfg.Scraper.UserAgent
	}
	client := fetch.NewClient(fetch.Config{
		UserAgent: userAgent,
		Timeout:   cfg.Scraper.APITimeout,
	}, log)
	return geocode.New(geocode.Config{
		BaseURL:           cfg.Geocoder.BaseURL,
		UserAgent:         userAgent,
		Email:             cfg.Geocoder.Email,
		RequestsPerSecond: cfg.Geocoder.RequestsPerSecond,
	}, client, cache, log)
}
