// Package config holds the eventfed configuration: defaults, the YAML file,
// environment overrides and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/geocode"
)

// Bounds on configured durations.
const (
	MinPolitenessDelay = time.Second
	MinTimeout         = time.Second
	MaxTimeout         = 120 * time.Second
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// ScraperConfig tunes fetching, discovery and extraction.
type ScraperConfig struct {
	UserAgent       string        `yaml:"user_agent"`
	PolitenessDelay time.Duration `yaml:"politeness_delay"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	PageTimeout     time.Duration `yaml:"page_timeout"`
	APITimeout      time.Duration `yaml:"api_timeout"`
	RenderTimeout   time.Duration `yaml:"render_timeout"`
	MaxCandidates   int           `yaml:"max_candidates"`
	RespectRobots   bool          `yaml:"respect_robots"`
	// Freshness is how long a successful scrape keeps a site off the batch.
	Freshness time.Duration `yaml:"freshness"`
}

// HeadlessConfig controls the browser fallback.
type HeadlessConfig struct {
	Enabled  bool   `yaml:"enabled"`
	ExecPath string `yaml:"exec_path"`
}

// GeocoderConfig points at a Nominatim-compatible service.
type GeocoderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	UserAgent         string  `yaml:"user_agent"`
	Email             string  `yaml:"email"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// BatchConfig bounds batch scrapes.
type BatchConfig struct {
	Limit         int     `yaml:"limit"`
	MaxDistanceKm float64 `yaml:"max_distance_km"`
	HomeLatitude  float64 `yaml:"home_latitude"`
	HomeLongitude float64 `yaml:"home_longitude"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Config represents the structure of ~/.eventfed/config.yaml.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Headless HeadlessConfig `yaml:"headless"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Batch    BatchConfig    `yaml:"batch"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{DSN: "eventfed.db"},
		Scraper: ScraperConfig{
			UserAgent:       fetch.DefaultUserAgent,
			PolitenessDelay: 2 * time.Second,
			ProbeTimeout:    10 * time.Second,
			PageTimeout:     30 * time.Second,
			APITimeout:      20 * time.Second,
			RenderTimeout:   45 * time.Second,
			MaxCandidates:   10,
			RespectRobots:   true,
			Freshness:       24 * time.Hour,
		},
		Geocoder: GeocoderConfig{
			BaseURL:           geocode.DefaultBaseURL,
			RequestsPerSecond: 1,
		},
		Batch:  BatchConfig{Limit: 50},
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Listen: ":8080"},
	}
}

// ApplyEnv overrides fields from EVENTFED_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("EVENTFED_DB"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("EVENTFED_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("EVENTFED_USER_AGENT"); v != "" {
		c.Scraper.UserAgent = v
	}
	if v := os.Getenv("EVENTFED_POLITENESS_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EVENTFED_POLITENESS_DELAY: %w", err)
		}
		c.Scraper.PolitenessDelay = d
	}
	if v := os.Getenv("EVENTFED_HEADLESS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EVENTFED_HEADLESS: %w", err)
		}
		c.Headless.Enabled = enabled
	}
	if v := os.Getenv("EVENTFED_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("EVENTFED_GEOCODER_URL"); v != "" {
		c.Geocoder.BaseURL = v
	}
	return nil
}

// Validate checks the configuration. A politeness delay under one second
// is raised to one second; other problems are errors.
func (c *Config) Validate() error {
	var problems []string

	if c.Storage.DSN == "" {
		problems = append(problems, "storage.dsn is required")
	}

	if c.Scraper.PolitenessDelay < 0 {
		problems = append(problems, "scraper.politeness_delay must not be negative")
	} else if c.Scraper.PolitenessDelay < MinPolitenessDelay {
		c.Scraper.PolitenessDelay = MinPolitenessDelay
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"scraper.probe_timeout", c.Scraper.ProbeTimeout},
		{"scraper.page_timeout", c.Scraper.PageTimeout},
		{"scraper.api_timeout", c.Scraper.APITimeout},
		{"scraper.render_timeout", c.Scraper.RenderTimeout},
	}
	for _, t := range timeouts {
		if t.value < MinTimeout || t.value > MaxTimeout {
			problems = append(problems, fmt.Sprintf("%s must be between %s and %s, got %s", t.name, MinTimeout, MaxTimeout, t.value))
		}
	}

	if c.Scraper.Freshness < 0 {
		problems = append(problems, "scraper.freshness must not be negative")
	}
	if c.Scraper.MaxCandidates < 0 {
		problems = append(problems, "scraper.max_candidates must not be negative")
	}
	if c.Geocoder.RequestsPerSecond < 0 {
		problems = append(problems, "geocoder.requests_per_second must not be negative")
	}
	if c.Batch.Limit < 0 {
		problems = append(problems, "batch.limit must not be negative")
	}
	if c.Batch.MaxDistanceKm < 0 {
		problems = append(problems, "batch.max_distance_km must not be negative")
	}
	if c.Batch.HomeLatitude < -90 || c.Batch.HomeLatitude > 90 {
		problems = append(problems, "batch.home_latitude must be within -90..90")
	}
	if c.Batch.HomeLongitude < -180 || c.Batch.HomeLongitude > 180 {
		problems = append(problems, "batch.home_longitude must be within -180..180")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
