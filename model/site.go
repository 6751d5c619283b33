// Package model holds the types shared by the discovery and scraping
// pipeline: municipality sites, extracted and persisted events.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CmsType classifies the content-management system powering a site.
type CmsType string

const (
	CmsDrupal    CmsType = "drupal"
	CmsTypo3     CmsType = "typo3"
	CmsWordPress CmsType = "wordpress"
	CmsJoomla    CmsType = "joomla"
	CmsContao    CmsType = "contao"
	CmsIWeb      CmsType = "iweb"
	CmsOneGov    CmsType = "onegov"
	CmsUnknown   CmsType = "unknown"
)

// KnownCmsTypes lists every CMS family except unknown, in detection order.
var KnownCmsTypes = []CmsType{
	CmsDrupal, CmsTypo3, CmsWordPress, CmsJoomla, CmsContao, CmsIWeb, CmsOneGov,
}

// ParseCmsType maps a stored string to a CmsType. Anything unrecognized is
// CmsUnknown.
func ParseCmsType(s string) CmsType {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range KnownCmsTypes {
		if string(c) == s {
			return c
		}
	}
	return CmsUnknown
}

// ScrapeStatus is the outcome of the most recent scrape of a site.
type ScrapeStatus string

const (
	StatusPending        ScrapeStatus = "pending"
	StatusActive         ScrapeStatus = "active"
	StatusHeadlessActive ScrapeStatus = "headless-active"
	StatusFailed         ScrapeStatus = "failed"
)

// ParseScrapeStatus maps a stored string to a ScrapeStatus, defaulting to
// pending.
func ParseScrapeStatus(s string) ScrapeStatus {
	switch ScrapeStatus(s) {
	case StatusActive, StatusHeadlessActive, StatusFailed:
		return ScrapeStatus(s)
	default:
		return StatusPending
	}
}

// SelectorSet is a set of structural selectors used to pull events out of a
// listing page. Every field is a comma-separated alternation evaluated left
// to right; the token "self" refers to the container element itself.
type SelectorSet struct {
	Container   string `json:"container"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Organizer   string `json:"organizer,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Site is a municipality website together with its discovery and scrape
// state.
type Site struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`

	WebsiteURL          string       `json:"website_url,omitempty"`
	EventPageURL        string       `json:"event_page_url,omitempty"`
	EventPagePattern    string       `json:"event_page_pattern,omitempty"`
	CmsType             CmsType      `json:"cms_type"`
	APIEndpoint         string       `json:"api_endpoint,omitempty"`
	EventSelectors      *SelectorSet `json:"event_selectors,omitempty"`
	DateFormat          string       `json:"date_format,omitempty"`
	Language            string       `json:"language,omitempty"`
	RequiresJavascript  bool         `json:"requires_javascript"`
	EventPageConfidence *float64     `json:"event_page_confidence,omitempty"`

	ScrapeStatus   ScrapeStatus `json:"scrape_status"`
	LastScraped    *time.Time   `json:"last_scraped,omitempty"`
	LastSuccessful *time.Time   `json:"last_successful,omitempty"`
	ScrapeError    string       `json:"scrape_error,omitempty"`
	EventCount     int          `json:"event_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
