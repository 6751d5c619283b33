// Package fetch performs the outbound HTTP requests of the scraper. Every
// request is bounded by a timeout, passes through a shared politeness
// limiter and, when enabled, is checked against the host's robots.txt.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pevans/eventfed/logger"
	"golang.org/x/time/rate"
)

const (
	// DefaultUserAgent identifies the scraper to municipal servers.
	DefaultUserAgent = "eventfed/1.0 (+municipal event aggregator)"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 8 * 1024 * 1024
)

var (
	// ErrDisallowed is returned when robots.txt forbids the URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s for %s", e.Status, http.StatusText(e.Status), e.URL)
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Options tunes a single request.
type Options struct {
	// Timeout bounds the whole request including body read. Zero uses the
	// client default.
	Timeout time.Duration
	Headers map[string]string
}

// Response is a fully read HTTP response.
type Response struct {
	Status      int
	Body        string
	FinalURL    string
	ContentType string
}

// Fetcher is the HTTP capability consumed by discovery, the API adapter and
// the scrape orchestrator.
type Fetcher interface {
	Get(ctx context.Context, url string, opts Options) (*Response, error)
}

// Config configures a Client.
type Config struct {
	UserAgent string
	// PolitenessDelay is the minimum spacing between any two requests made
	// through the client. Zero disables spacing.
	PolitenessDelay time.Duration
	Timeout         time.Duration
	RespectRobots   bool
}

// Client is the production Fetcher.
type Client struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	limiter   *rate.Limiter
	robots    *RobotsChecker
	log       logger.Logger
}

// NewClient creates a new Client.
func NewClient(cfg Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	httpClient := &http.Client{}

	c := &Client{
		http:      httpClient,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		log:       log,
	}
	if cfg.PolitenessDelay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.PolitenessDelay), 1)
	}
	if cfg.RespectRobots {
		c.robots = NewRobotsChecker(httpClient, cfg.UserAgent, 0)
	}
	return c
}

// Get fetches url. Non-2xx responses return both the Response and a
// *StatusError.
func (c *Client) Get(ctx context.Context, url string, opts Options) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.robots != nil {
		allowed, err := c.robots.IsAllowed(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to check robots.txt: %w", err)
		}
		if !allowed {
			c.log.Debug("robots.txt disallows url", logger.String("url", url))
			return nil, fmt.Errorf("%s: %w", url, ErrDisallowed)
		}
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "de-CH,de;q=0.9,fr;q=0.8,it;q=0.7,en;q=0.5")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	out := &Response{
		Status:      resp.StatusCode,
		Body:        string(body),
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &StatusError{URL: url, Status: resp.StatusCode}
	}
	return out, nil
}

// wait blocks until the politeness limiter admits another request.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("politeness wait: %w", err)
	}
	return nil
}
