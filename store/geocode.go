package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pevans/eventfed/geocode"
)

// GetGeocode returns a cached lookup.
func (s *Store) GetGeocode(ctx context.Context, query string) (geocode.Point, bool, error) {
	var lat, lon sql.NullFloat64
	var found bool

	err := s.db.QueryRowContext(ctx,
		"SELECT latitude, longitude, found FROM geocode_cache WHERE query = ?", query,
	).Scan(&lat, &lon, &found)
	if err == sql.ErrNoRows {
		return geocode.Point{}, false, nil
	}
	if err != nil {
		return geocode.Point{}, false, fmt.Errorf("failed to query geocode cache: %w", err)
	}

	return geocode.Point{Latitude: lat.Float64, Longitude: lon.Float64, Found: found}, true, nil
}

// PutGeocode caches a lookup, replacing any earlier entry.
func (s *Store) PutGeocode(ctx context.Context, query string, p geocode.Point) error {
	now := s.now()
	var lat, lon any
	if p.Found {
		lat, lon = p.Latitude, p.Longitude
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (query, latitude, longitude, found, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			found = excluded.found,
			created_at = excluded.created_at
	`, query, lat, lon, p.Found, formatTime(&now))
	if err != nil {
		return fmt.Errorf("failed to write geocode cache: %w", err)
	}
	return nil
}
