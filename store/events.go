package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/model"
)

// EventFilter represents filtering options for listing events.
type EventFilter struct {
	SiteID *uuid.UUID
	From   *time.Time // inclusive
	To     *time.Time // exclusive
	Limit  int
	Offset int
}

const eventColumns = `
	hash, site_id, title, normalized_title, description, start_date,
	end_date, location, venue_name, url, organizer, category, price,
	image_url, latitude, longitude, source, first_seen, last_seen`

// UpsertEvent inserts ev or, when an event with the same hash exists,
// refreshes its mutable fields. FirstSeen is kept from the original row.
// created reports whether a new row was written.
func (s *Store) UpsertEvent(ctx context.Context, ev model.PersistedEvent) (created bool, err error) {
	if ev.Hash == "" {
		return false, fmt.Errorf("event has no hash")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM events WHERE hash = ?", ev.Hash).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to check event: %w", err)
	}

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			end_date = excluded.end_date,
			location = excluded.location,
			venue_name = excluded.venue_name,
			url = excluded.url,
			organizer = excluded.organizer,
			category = excluded.category,
			price = excluded.price,
			image_url = excluded.image_url,
			latitude = COALESCE(excluded.latitude, events.latitude),
			longitude = COALESCE(excluded.longitude, events.longitude),
			source = excluded.source,
			last_seen = excluded.last_seen
	`

	_, err = tx.ExecContext(ctx, query,
		ev.Hash,
		ev.SiteID,
		ev.Title,
		ev.NormalizedTitle,
		nullString(ev.Description),
		formatTime(&ev.StartDate),
		formatTime(ev.EndDate),
		nullString(ev.Location),
		nullString(ev.VenueName),
		nullString(ev.URL),
		nullString(ev.Organizer),
		nullString(ev.Category),
		nullString(ev.Price),
		nullString(ev.ImageURL),
		nullFloat(ev.Latitude),
		nullFloat(ev.Longitude),
		ev.Source,
		formatTime(&ev.FirstSeen),
		formatTime(&ev.LastSeen),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit event: %w", err)
	}
	return exists == 0, nil
}

// GetEvent retrieves an event by hash.
func (s *Store) GetEvent(ctx context.Context, hash string) (*model.PersistedEvent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE hash = ?", hash)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	return ev, nil
}

// ListEvents lists events ordered by start date.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]model.PersistedEvent, error) {
	query := "SELECT " + eventColumns + " FROM events"

	var whereClauses []string
	var args []any

	if filter.SiteID != nil {
		whereClauses = append(whereClauses, "site_id = ?")
		args = append(args, filter.SiteID.String())
	}
	if filter.From != nil {
		whereClauses = append(whereClauses, "start_date >= ?")
		args = append(args, formatTime(filter.From))
	}
	if filter.To != nil {
		whereClauses = append(whereClauses, "start_date < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY start_date ASC, title ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.PersistedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// scanEvent parses a row selected with eventColumns.
func scanEvent(row rowScanner) (*model.PersistedEvent, error) {
	var (
		ev                                     model.PersistedEvent
		startDate, firstSeen, lastSeen         string
		description, endDate, location, venue  sql.NullString
		url, organizer, category, price, image sql.NullString
		latitude, longitude                    sql.NullFloat64
	)

	err := row.Scan(
		&ev.Hash, &ev.SiteID, &ev.Title, &ev.NormalizedTitle, &description, &startDate,
		&endDate, &location, &venue, &url, &organizer, &category, &price,
		&image, &latitude, &longitude, &ev.Source, &firstSeen, &lastSeen,
	)
	if err != nil {
		return nil, err
	}

	ev.Description = description.String
	ev.StartDate = parseTime(startDate)
	ev.EndDate = parseNullTime(endDate)
	ev.Location = location.String
	ev.VenueName = venue.String
	ev.URL = url.String
	ev.Organizer = organizer.String
	ev.Category = category.String
	ev.Price = price.String
	ev.ImageURL = image.String
	ev.Latitude = floatPtr(latitude)
	ev.Longitude = floatPtr(longitude)
	ev.FirstSeen = parseTime(firstSeen)
	ev.LastSeen = parseTime(lastSeen)

	return &ev, nil
}
