package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

// SaveLocation creates or replaces the single location of an owner and sets its ID
func (r *SQLiteRepository) SaveLocation(ctx context.Context, l *entities.Location) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO locations(owner_id, name, latitude, longitude, active)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
		name=excluded.name,
		latitude=excluded.latitude,
		longitude=excluded.longitude,
		active=excluded.active`,
		l.OwnerID, l.Name, l.Latitude, l.Longitude, l.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save location for owner %d: %w", l.OwnerID, err)
	}

	stored, err := r.GetLocationByOwner(ctx, l.OwnerID)
	if err != nil {
		return err
	}
	l.ID = stored.ID
	log.Printf("Saved location %d (%s) for owner %d", l.ID, l.Name, l.OwnerID)
	return nil
}

func scanLocation(row rowScanner) (entities.Location, error) {
	var l entities.Location
	var lastFetch sql.NullString
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Latitude, &l.Longitude, &l.Active, &lastFetch); err != nil {
		return l, err
	}
	var err error
	l.LastClimateFetch, err = parseTime(lastFetch)
	return l, err
}

// GetLocationByOwner retrieves the location of an owner
func (r *SQLiteRepository) GetLocationByOwner(ctx context.Context, ownerID int64) (*entities.Location, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, latitude, longitude, active, last_climate_fetch
		FROM locations WHERE owner_id = ?`, ownerID)
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("location of owner %d: %w", ownerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get location of owner %d: %w", ownerID, err)
	}
	return &l, nil
}

// ListActiveLocations returns every location the daily batch should visit
func (r *SQLiteRepository) ListActiveLocations(ctx context.Context) ([]entities.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, latitude, longitude, active, last_climate_fetch
		FROM locations WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var result []entities.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// TouchClimateFetch records when weather was last fetched for a location
func (r *SQLiteRepository) TouchClimateFetch(ctx context.Context, locationID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE locations SET last_climate_fetch = ? WHERE id = ?`, formatTime(at), locationID)
	if err != nil {
		return fmt.Errorf("failed to update climate fetch time of location %d: %w", locationID, err)
	}
	return expectOne(res, "location", locationID)
}

const sampleColumns = `id, location_id, date, max_temp, min_temp, mean_humidity, precipitation_mm, wind_kmh, source, processed, created_at`

func scanSample(row rowScanner) (entities.ClimateSample, error) {
	var s entities.ClimateSample
	var date string
	var createdAt sql.NullString
	if err := row.Scan(
		&s.ID,
		&s.LocationID,
		&date,
		&s.MaxTemp,
		&s.MinTemp,
		&s.MeanHumidity,
		&s.PrecipitationMM,
		&s.WindKMH,
		&s.Source,
		&s.Processed,
		&createdAt,
	); err != nil {
		return s, err
	}
	var err error
	if s.Date, err = entities.ParseDay(date); err != nil {
		return s, fmt.Errorf("failed to parse sample date '%s': %w", date, err)
	}
	s.CreatedAt, err = parseTime(createdAt)
	return s, err
}

// UpsertClimateSample stores the sample for (location, day). Re-fetching the same
// day overwrites the readings until the sample has been processed; after that the
// stored row wins. The stored sample is returned.
func (r *SQLiteRepository) UpsertClimateSample(ctx context.Context, s entities.ClimateSample) (*entities.ClimateSample, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO climate_samples(location_id, date, max_temp, min_temp, mean_humidity, precipitation_mm, wind_kmh, source, processed, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(location_id, date) DO UPDATE SET
		max_temp=excluded.max_temp,
		min_temp=excluded.min_temp,
		mean_humidity=excluded.mean_humidity,
		precipitation_mm=excluded.precipitation_mm,
		wind_kmh=excluded.wind_kmh,
		source=excluded.source
		WHERE climate_samples.processed = 0`,
		s.LocationID, formatDay(s.Date), s.MaxTemp, s.MinTemp, s.MeanHumidity, s.PrecipitationMM, s.WindKMH,
		s.Source, formatTime(s.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert climate sample for location %d: %w", s.LocationID, err)
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM climate_samples WHERE location_id = ? AND date = ?`,
		s.LocationID, formatDay(s.Date))
	stored, err := scanSample(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read back climate sample for location %d: %w", s.LocationID, err)
	}
	return &stored, nil
}

// MarkSampleProcessed freezes a climate sample
func (r *SQLiteRepository) MarkSampleProcessed(ctx context.Context, sampleID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE climate_samples SET processed = 1 WHERE id = ?`, sampleID)
	if err != nil {
		return fmt.Errorf("failed to mark climate sample %d processed: %w", sampleID, err)
	}
	return expectOne(res, "climate sample", sampleID)
}

// LatestClimateSample returns the most recent sample of a location
func (r *SQLiteRepository) LatestClimateSample(ctx context.Context, locationID int64) (*entities.ClimateSample, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM climate_samples
		WHERE location_id = ? ORDER BY date DESC LIMIT 1`, locationID)
	s, err := scanSample(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("climate sample of location %d: %w", locationID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest climate sample of location %d: %w", locationID, err)
	}
	return &s, nil
}
