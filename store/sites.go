package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/model"
)

// NewSite holds the fields required to register a municipality.
type NewSite struct {
	Name       string  `json:"name" binding:"required"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	WebsiteURL string  `json:"website_url,omitempty"`
	Language   string  `json:"language,omitempty"`
}

// SiteUpdate represents fields that can be updated on a site.
type SiteUpdate struct {
	Name                *string
	WebsiteURL          *string
	EventPageURL        *string
	EventPagePattern    *string
	CmsType             *model.CmsType
	APIEndpoint         *string
	EventSelectors      *model.SelectorSet
	DateFormat          *string
	Language            *string
	RequiresJavascript  *bool
	EventPageConfidence *float64
	ScrapeStatus        *model.ScrapeStatus
	LastScraped         *time.Time
	LastSuccessful      *time.Time
	ScrapeError         *string // empty string clears the error
	EventCount          *int
}

// SiteFilter represents filtering options for listing sites.
type SiteFilter struct {
	Status       *model.ScrapeStatus
	HasEventPage *bool
	Limit        int
	Offset       int
}

// DueQuery selects sites for a batch scrape.
type DueQuery struct {
	Limit int
	// MaxDistanceKm drops sites farther than this from the home point. Zero
	// disables the filter.
	MaxDistanceKm float64
	HomeLatitude  float64
	HomeLongitude float64
	// Freshness is how long a scrape stays current.
	Freshness time.Duration
}

const siteColumns = `
	id, name, latitude, longitude, website_url, event_page_url,
	event_page_pattern, cms_type, api_endpoint, event_selectors,
	date_format, language, requires_javascript, event_page_confidence,
	scrape_status, last_scraped, last_successful, scrape_error,
	event_count, created_at, updated_at`

// CreateSite registers a new site in the pending state.
func (s *Store) CreateSite(ctx context.Context, in NewSite) (*model.Site, error) {
	if math.Abs(in.Latitude) > 90 || math.Abs(in.Longitude) > 180 {
		return nil, ErrInvalidCoordinate
	}

	now := s.now()
	site := &model.Site{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(in.Name),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		WebsiteURL:   strings.TrimSpace(in.WebsiteURL),
		Language:     in.Language,
		CmsType:      model.CmsUnknown,
		ScrapeStatus: model.StatusPending,
		CreatedAt:    now.Truncate(0),
		UpdatedAt:    now.Truncate(0),
	}

	query := `
		INSERT INTO sites (
			id, name, latitude, longitude, website_url, language,
			cms_type, scrape_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		site.ID.String(),
		site.Name,
		site.Latitude,
		site.Longitude,
		nullString(site.WebsiteURL),
		nullString(site.Language),
		string(site.CmsType),
		string(site.ScrapeStatus),
		formatTime(&site.CreatedAt),
		formatTime(&site.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateWebsite
		}
		return nil, fmt.Errorf("failed to insert site: %w", err)
	}

	return site, nil
}

// GetSite retrieves a site by ID.
func (s *Store) GetSite(ctx context.Context, id uuid.UUID) (*model.Site, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+siteColumns+" FROM sites WHERE id = ?", id.String())

	site, err := scanSite(row)
	if err == sql.ErrNoRows {
		return nil, ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query site: %w", err)
	}
	return site, nil
}

// ListSites lists sites with optional filtering, ordered by name.
func (s *Store) ListSites(ctx context.Context, filter SiteFilter) ([]model.Site, error) {
	query := "SELECT " + siteColumns + " FROM sites"

	var whereClauses []string
	var args []any

	if filter.Status != nil {
		whereClauses = append(whereClauses, "scrape_status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.HasEventPage != nil {
		if *filter.HasEventPage {
			whereClauses = append(whereClauses, "event_page_url IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "event_page_url IS NULL")
		}
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY name ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return s.querySites(ctx, query, args...)
}

// SitesDueForScrape returns sites with an event page or API endpoint that
// have not been scraped within the freshness window. Never-scraped sites
// come first, then the oldest scrape; ties go to the site nearest the home
// point.
func (s *Store) SitesDueForScrape(ctx context.Context, q DueQuery) ([]model.Site, error) {
	query := "SELECT " + siteColumns + ` FROM sites
		WHERE (event_page_url IS NOT NULL OR api_endpoint IS NOT NULL)
		  AND (last_scraped IS NULL OR last_scraped < ?)`

	cutoff := s.now().Add(-q.Freshness)
	sites, err := s.querySites(ctx, query, formatTime(&cutoff))
	if err != nil {
		return nil, err
	}

	type dueSite struct {
		site     model.Site
		distance float64
	}

	due := make([]dueSite, 0, len(sites))
	for _, site := range sites {
		d := DistanceKm(q.HomeLatitude, q.HomeLongitude, site.Latitude, site.Longitude)
		if q.MaxDistanceKm > 0 && d > q.MaxDistanceKm {
			continue
		}
		due = append(due, dueSite{site: site, distance: d})
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].site.LastScraped, due[j].site.LastScraped
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return due[i].distance < due[j].distance
	})

	if q.Limit > 0 && len(due) > q.Limit {
		due = due[:q.Limit]
	}

	out := make([]model.Site, len(due))
	for i, d := range due {
		out[i] = d.site
	}
	return out, nil
}

// UpdateSite updates a site with the provided fields.
func (s *Store) UpdateSite(ctx context.Context, id uuid.UUID, update SiteUpdate) error {
	// Build dynamic UPDATE query based on provided fields
	setClauses := []string{"updated_at = ?"}
	now := s.now()
	args := []any{formatTime(&now)}

	set := func(column string, value any) {
		setClauses = append(setClauses, column+" = ?")
		args = append(args, value)
	}

	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.WebsiteURL != nil {
		set("website_url", nullString(*update.WebsiteURL))
	}
	if update.EventPageURL != nil {
		set("event_page_url", nullString(*update.EventPageURL))
	}
	if update.EventPagePattern != nil {
		set("event_page_pattern", nullString(*update.EventPagePattern))
	}
	if update.CmsType != nil {
		set("cms_type", string(*update.CmsType))
	}
	if update.APIEndpoint != nil {
		set("api_endpoint", nullString(*update.APIEndpoint))
	}
	if update.EventSelectors != nil {
		data, err := json.Marshal(update.EventSelectors)
		if err != nil {
			return fmt.Errorf("failed to marshal event_selectors: %w", err)
		}
		set("event_selectors", string(data))
	}
	if update.DateFormat != nil {
		set("date_format", nullString(*update.DateFormat))
	}
	if update.Language != nil {
		set("language", nullString(*update.Language))
	}
	if update.RequiresJavascript != nil {
		set("requires_javascript", *update.RequiresJavascript)
	}
	if update.EventPageConfidence != nil {
		set("event_page_confidence", *update.EventPageConfidence)
	}
	if update.ScrapeStatus != nil {
		set("scrape_status", string(*update.ScrapeStatus))
	}
	if update.LastScraped != nil {
		set("last_scraped", formatTime(update.LastScraped))
	}
	if update.LastSuccessful != nil {
		set("last_successful", formatTime(update.LastSuccessful))
	}
	if update.ScrapeError != nil {
		set("scrape_error", nullString(*update.ScrapeError))
	}
	if update.EventCount != nil {
		set("event_count", *update.EventCount)
	}

	args = append(args, id.String())
	query := fmt.Sprintf("UPDATE sites SET %s WHERE id = ?", strings.Join(setClauses, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateWebsite
		}
		return fmt.Errorf("failed to update site: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSiteNotFound
	}

	return nil
}

// Discovery is the outcome of a successful event-page discovery.
type Discovery struct {
	EventPageURL       string
	EventPagePattern   string
	CmsType            model.CmsType
	APIEndpoint        string
	Confidence         *float64
	RequiresJavascript bool
}

// UpdateSiteDiscovery records a found event page.
func (s *Store) UpdateSiteDiscovery(ctx context.Context, id uuid.UUID, d Discovery) error {
	if d.CmsType == "" {
		d.CmsType = model.CmsUnknown
	}
	update := SiteUpdate{
		EventPageURL:        &d.EventPageURL,
		EventPagePattern:    &d.EventPagePattern,
		CmsType:             &d.CmsType,
		RequiresJavascript:  &d.RequiresJavascript,
		EventPageConfidence: d.Confidence,
	}
	if d.APIEndpoint != "" {
		update.APIEndpoint = &d.APIEndpoint
	}
	return s.UpdateSite(ctx, id, update)
}

// ScrapeOutcome is what a scrape writes back to its site.
type ScrapeOutcome struct {
	Status             model.ScrapeStatus
	Error              string
	Selectors          *model.SelectorSet
	CmsType            model.CmsType
	EventCount         int
	RequiresJavascript *bool
	ScrapedAt          time.Time
}

// UpdateSiteAfterScrape records the result of a scrape. A failed scrape
// keeps the previous event count and last successful time.
func (s *Store) UpdateSiteAfterScrape(ctx context.Context, id uuid.UUID, o ScrapeOutcome) error {
	scrapedAt := o.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = s.now()
	}

	update := SiteUpdate{
		ScrapeStatus:       &o.Status,
		ScrapeError:        &o.Error,
		LastScraped:        &scrapedAt,
		EventSelectors:     o.Selectors,
		RequiresJavascript: o.RequiresJavascript,
	}
	if o.CmsType != "" {
		update.CmsType = &o.CmsType
	}
	if o.Status != model.StatusFailed {
		update.LastSuccessful = &scrapedAt
		update.EventCount = &o.EventCount
	}
	return s.UpdateSite(ctx, id, update)
}

func (s *Store) querySites(ctx context.Context, query string, args ...any) ([]model.Site, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, *site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sites: %w", err)
	}

	return sites, nil
}

// scanSite parses a row selected with siteColumns.
func scanSite(row rowScanner) (*model.Site, error) {
	var (
		idStr, name, cmsType, status, createdAt, updatedAt string
		latitude, longitude                                float64
		websiteURL, eventPageURL, pattern, apiEndpoint     sql.NullString
		selectorsJSON, dateFormat, language, scrapeError   sql.NullString
		lastScraped, lastSuccessful                        sql.NullString
		requiresJS                                         bool
		confidence                                         sql.NullFloat64
		eventCount                                         int
	)

	err := row.Scan(
		&idStr, &name, &latitude, &longitude, &websiteURL, &eventPageURL,
		&pattern, &cmsType, &apiEndpoint, &selectorsJSON,
		&dateFormat, &language, &requiresJS, &confidence,
		&status, &lastScraped, &lastSuccessful, &scrapeError,
		&eventCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse site ID: %w", err)
	}

	site := &model.Site{
		ID:                  id,
		Name:                name,
		Latitude:            latitude,
		Longitude:           longitude,
		WebsiteURL:          websiteURL.String,
		EventPageURL:        eventPageURL.String,
		EventPagePattern:    pattern.String,
		CmsType:             model.ParseCmsType(cmsType),
		APIEndpoint:         apiEndpoint.String,
		DateFormat:          dateFormat.String,
		Language:            language.String,
		RequiresJavascript:  requiresJS,
		EventPageConfidence: floatPtr(confidence),
		ScrapeStatus:        model.ParseScrapeStatus(status),
		LastScraped:         parseNullTime(lastScraped),
		LastSuccessful:      parseNullTime(lastSuccessful),
		ScrapeError:         scrapeError.String,
		EventCount:          eventCount,
		CreatedAt:           parseTime(createdAt),
		UpdatedAt:           parseTime(updatedAt),
	}

	if selectorsJSON.Valid && selectorsJSON.String != "" {
		var sel model.SelectorSet
		if err := json.Unmarshal([]byte(selectorsJSON.String), &sel); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event_selectors: %w", err)
		}
		site.EventSelectors = &sel
	}

	return site, nil
}
