package model

import (
	"strings"
	"time"
)

// ExtractedEvent is an event as pulled out of a page or API, before
// normalization.
type ExtractedEvent struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Location    string     `json:"location,omitempty"`
	VenueName   string     `json:"venue_name,omitempty"`
	URL         string     `json:"url,omitempty"`
	Organizer   string     `json:"organizer,omitempty"`
	Category    string     `json:"category,omitempty"`
	Price       string     `json:"price,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
}

// Clean collapses whitespace in text fields and drops an end date that
// precedes the start date.
func (e *ExtractedEvent) Clean() {
	e.Title = collapse(e.Title)
	e.Description = collapse(e.Description)
	e.Location = collapse(e.Location)
	e.VenueName = collapse(e.VenueName)
	e.Organizer = collapse(e.Organizer)
	e.Category = collapse(e.Category)
	e.Price = collapse(e.Price)
	e.URL = strings.TrimSpace(e.URL)
	e.ImageURL = strings.TrimSpace(e.ImageURL)

	if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
		e.EndDate = nil
	}
}

// Valid reports whether the event has a title and a start date.
func (e *ExtractedEvent) Valid() bool {
	return strings.TrimSpace(e.Title) != "" && !e.StartDate.IsZero()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StrategyResult is the output of a single extraction strategy.
type StrategyResult struct {
	Events     []ExtractedEvent `json:"events"`
	Confidence float64          `json:"confidence"`
	Method     string           `json:"method"`
	Errors     []string         `json:"errors,omitempty"`
}

// PersistedEvent is the canonical stored form of an event, keyed by Hash.
type PersistedEvent struct {
	Hash            string     `json:"hash"`
	SiteID          string     `json:"site_id"`
	Title           string     `json:"title"`
	NormalizedTitle string     `json:"normalized_title"`
	Description     string     `json:"description,omitempty"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	Location        string     `json:"location,omitempty"`
	VenueName       string     `json:"venue_name,omitempty"`
	URL             string     `json:"url,omitempty"`
	Organizer       string     `json:"organizer,omitempty"`
	Category        string     `json:"category,omitempty"`
	Price           string     `json:"price,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	Source          string     `json:"source"`
	FirstSeen       time.Time  `json:"first_seen"`
	LastSeen        time.Time  `json:"last_seen"`
}
