// Package geocode resolves venue addresses to coordinates through a
// Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/eventfed/fetch"
	"github.com/pevans/eventfed/logger"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	defaultTimeout = 10 * time.Second
)

// Point is a cached lookup result. Found is false for addresses the
// geocoder could not resolve, so they are not asked for again.
type Point struct {
	Latitude  float64
	Longitude float64
	Found     bool
}

// Cache stores lookup results keyed by normalized address.
type Cache interface {
	GetGeocode(ctx context.Context, query string) (Point, bool, error)
	PutGeocode(ctx context.Context, query string, p Point) error
}

// Config configures a Geocoder.
type Config struct {
	BaseURL   string
	UserAgent string
	// Email is sent with each request as Nominatim's usage policy asks.
	Email string
	// RequestsPerSecond caps outbound lookups. Zero means one per second.
	RequestsPerSecond float64
	// CountryCodes restricts results, comma separated. Defaults to "ch".
	CountryCodes string
}

// Geocoder is a cached, rate-limited address lookup. It never returns an
// error; a failed lookup is reported as not found.
type Geocoder struct {
	fetcher fetch.Fetcher
	cache   Cache
	limiter *rate.Limiter
	cfg     Config
	log     logger.Logger
}

// New creates a new Geocoder. cache may be nil.
func New(cfg Config, f fetch.Fetcher, cache Cache, log logger.Logger) *Geocoder {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.CountryCodes == "" {
		cfg.CountryCodes = "ch"
	}
	return &Geocoder{
		fetcher: f,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:     cfg,
		log:     log,
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Lookup returns the coordinates of address.
func (g *Geocoder) Lookup(ctx context.Context, address string) (lat, lon float64, ok bool) {
	query := normalizeQuery(address)
	if query == "" {
		return 0, 0, false
	}

	if g.cache != nil {
		p, hit, err := g.cache.GetGeocode(ctx, query)
		if err != nil {
			g.log.Warn("geocode cache read failed", logger.String("query", query), logger.Error(err))
		} else if hit {
			return p.Latitude, p.Longitude, p.Found
		}
	}

	p, err := g.search(ctx, query)
	if err != nil {
		// Transient failures are not cached.
		g.log.Warn("geocode lookup failed", logger.String("query", query), logger.Error(err))
		return 0, 0, false
	}

	if g.cache != nil {
		if err := g.cache.PutGeocode(ctx, query, p); err != nil {
			g.log.Warn("geocode cache write failed", logger.String("query", query), logger.Error(err))
		}
	}
	return p.Latitude, p.Longitude, p.Found
}

func (g *Geocoder) search(ctx context.Context, query string) (Point, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Point{}, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("countrycodes", g.cfg.CountryCodes)
	if g.cfg.Email != "" {
		params.Set("email", g.cfg.Email)
	}

	headers := map[string]string{"Accept": "application/json"}
	if g.cfg.UserAgent != "" {
		headers["User-Agent"] = g.cfg.UserAgent
	}

	resp, err := g.fetcher.Get(ctx, strings.TrimRight(g.cfg.BaseURL, "/")+"/search?"+params.Encode(), fetch.Options{
		Timeout: defaultTimeout,
		Headers: headers,
	})
	if err != nil {
		return Point{}, err
	}

	var results []searchResult
	if err := json.Unmarshal([]byte(resp.Body), &results); err != nil {
		return Point{}, err
	}
	if len(results) == 0 {
		return Point{}, nil
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return Point{}, nil
	}
	return Point{Latitude: lat, Longitude: lon, Found: true}, nil
}

// normalizeQuery collapses whitespace and case so equivalent addresses
// share a cache entry.
func normalizeQuery(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
