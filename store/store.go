// Package store persists municipality sites, their events and the geocode
// cache in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for store operations
var (
	ErrSiteNotFound      = errors.New("site not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrDuplicateWebsite  = errors.New("site with this website URL already exists")
	ErrInvalidCoordinate = errors.New("latitude must be within -90..90 and longitude within -180..180")
)

// Store manages sites, events and cached geocodes using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; the batch loop is sequential anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		website_url TEXT UNIQUE,
		event_page_url TEXT,
		event_page_pattern TEXT,
		cms_type TEXT NOT NULL DEFAULT 'unknown',
		api_endpoint TEXT,
		event_selectors TEXT,
		date_format TEXT,
		language TEXT,
		requires_javascript INTEGER NOT NULL DEFAULT 0,
		event_page_confidence REAL,
		scrape_status TEXT NOT NULL DEFAULT 'pending',
		last_scraped TEXT,
		last_successful TEXT,
		scrape_error TEXT,
		event_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		hash TEXT PRIMARY KEY,
		site_id TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		normalized_title TEXT NOT NULL,
		description TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT,
		location TEXT,
		venue_name TEXT,
		url TEXT,
		organizer TEXT,
		category TEXT,
		price TEXT,
		image_url TEXT,
		latitude REAL,
		longitude REAL,
		source TEXT NOT NULL,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_site_start ON events(site_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_date);

	CREATE TABLE IF NOT EXISTS geocode_cache (
		query TEXT PRIMARY KEY,
		latitude REAL,
		longitude REAL,
		found INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "unique constraint")
}

// timeLayout is fixed width in UTC so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Truncate(0).Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
