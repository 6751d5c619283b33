package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	defaultRobotsTTL   = 24 * time.Hour
	maxRobotsBodyBytes = 512 * 1024
)

// RobotsChecker fetches and caches robots.txt per host. Missing or
// unreadable robots.txt allows everything.
type RobotsChecker struct {
	http      *http.Client
	userAgent string
	ttl       time.Duration

	mu    sync.RWMutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// NewRobotsChecker creates a new RobotsChecker. A zero ttl caches entries
// for a day.
func NewRobotsChecker(client *http.Client, userAgent string, ttl time.Duration) *RobotsChecker {
	if ttl <= 0 {
		ttl = defaultRobotsTTL
	}
	return &RobotsChecker{
		http:      client,
		userAgent: userAgent,
		ttl:       ttl,
		cache:     make(map[string]robotsEntry),
	}
}

// IsAllowed reports whether the user agent may fetch rawURL.
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("failed to parse url: %w", err)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return false, fmt.Errorf("empty host in url %q", rawURL)
	}
	if u.Path == "/robots.txt" {
		return true, nil
	}

	entry := r.entry(ctx, u.Scheme, host)
	if entry.data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return entry.data.TestAgent(path, r.userAgent), nil
}

func (r *RobotsChecker) entry(ctx context.Context, scheme, host string) robotsEntry {
	r.mu.RLock()
	e, ok := r.cache[host]
	r.mu.RUnlock()
	if ok && time.Since(e.fetchedAt) < r.ttl {
		return e
	}

	e = robotsEntry{data: r.fetch(ctx, scheme, host), fetchedAt: time.Now()}

	r.mu.Lock()
	r.cache[host] = e
	r.mu.Unlock()
	return e
}

// fetch returns nil when robots.txt is absent or unusable.
func (r *RobotsChecker) fetch(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	if scheme == "" {
		scheme = "https"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/robots.txt", http.NoBody)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
