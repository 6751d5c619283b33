// Package normalize turns extracted events into their persisted form. It
// owns the uniqueness hash and the rolling window of events worth keeping.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/pevans/eventfed/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FutureWindow is how far ahead of now an event may start and still be
// kept. Every component that filters by date uses this value.
const FutureWindow = 90 * 24 * time.Hour

// SiteContext identifies where an event came from. Municipal sources are
// keyed by SiteID; other sources fall back to rounded coordinates.
type SiteContext struct {
	SiteID    string
	Latitude  float64
	Longitude float64
	// Municipal is false for sources that are not a municipality site.
	Municipal bool
	Source    string
}

// Normalizer converts ExtractedEvents into PersistedEvents.
type Normalizer struct {
	// Now is the clock the window is evaluated against on every call.
	Now func() time.Time
}

// New returns a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// InWindow reports whether start lies within [now, now+FutureWindow].
func InWindow(start, now time.Time) bool {
	return !start.Before(now) && !start.After(now.Add(FutureWindow))
}

// Normalize returns the persisted form of ev, or false when the event is
// invalid or outside the window.
func (n *Normalizer) Normalize(ev model.ExtractedEvent, site SiteContext) (model.PersistedEvent, bool) {
	ev.Clean()
	if !ev.Valid() {
		return model.PersistedEvent{}, false
	}

	now := n.Now()
	if !InWindow(ev.StartDate, now) {
		return model.PersistedEvent{}, false
	}

	normalized := NormalizeTitle(ev.Title)
	if normalized == "" {
		return model.PersistedEvent{}, false
	}

	start := ev.StartDate.Truncate(time.Minute)
	var end *time.Time
	if ev.EndDate != nil {
		e := ev.EndDate.Truncate(time.Minute)
		end = &e
	}

	return model.PersistedEvent{
		Hash:            Hash(site, ev.Title, ev.StartDate),
		SiteID:          site.SiteID,
		Title:           ev.Title,
		NormalizedTitle: normalized,
		Description:     ev.Description,
		StartDate:       start,
		EndDate:         end,
		Location:        ev.Location,
		VenueName:       ev.VenueName,
		URL:             ev.URL,
		Organizer:       ev.Organizer,
		Category:        ev.Category,
		Price:           ev.Price,
		ImageURL:        ev.ImageURL,
		Latitude:        ev.Latitude,
		Longitude:       ev.Longitude,
		Source:          site.Source,
		FirstSeen:       now,
		LastSeen:        now,
	}, true
}

// Fold lowercases s and strips diacritics, leaving everything else intact.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// NormalizeTitle lowercases, decomposes, strips diacritics and drops every
// character that is not a letter or digit.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range Fold(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Hash is the uniqueness key of an event: hex SHA-256 over source identity,
// normalized title and the UTC start time at minute precision.
func Hash(site SiteContext, title string, start time.Time) string {
	identity := site.SiteID
	if !site.Municipal {
		identity = fmt.Sprintf("%.3f,%.3f", round3(site.Latitude), round3(site.Longitude))
	}

	stamp := start.UTC().Truncate(time.Minute).Format("2006-01-02T15:04Z")
	sum := sha256.Sum256([]byte(identity + "|" + NormalizeTitle(title) + "|" + stamp))
	return hex.EncodeToString(sum[:])
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
