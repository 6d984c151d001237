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

const plantColumns = `id, owner_id, name, kind, pot_liters, size, flowering, mode, last_watered, calendar_event_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlant(row rowScanner) (entities.Plant, error) {
	var p entities.Plant
	var lastWatered string
	var eventID, createdAt sql.NullString
	if err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.Kind,
		&p.PotLiters,
		&p.Size,
		&p.Flowering,
		&p.Mode,
		&lastWatered,
		&eventID,
		&createdAt,
	); err != nil {
		return p, err
	}

	var err error
	if p.LastWatered, err = entities.ParseDay(lastWatered); err != nil {
		return p, fmt.Errorf("failed to parse last watered date '%s': %w", lastWatered, err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	p.EventID = eventID.String
	return p, nil
}

func (r *SQLiteRepository) queryPlants(ctx context.Context, query string, args ...any) ([]entities.Plant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plants: %w", err)
	}
	defer rows.Close()

	var result []entities.Plant
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return result, nil
}

// CreatePlant stores a new plant and sets its ID
func (r *SQLiteRepository) CreatePlant(ctx context.Context, p *entities.Plant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Kind == "" {
		p.Kind = entities.KindPhoto
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO plants(owner_id, name, kind, pot_liters, size, flowering, mode, last_watered, calendar_event_id, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OwnerID, p.Name, p.Kind, p.PotLiters, p.Size, p.Flowering, p.Mode,
		formatDay(p.LastWatered), nullString(p.EventID), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert plant %s: %w", p.Name, err)
	}

	if p.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read plant id: %w", err)
	}
	log.Printf("Created plant %d (%s) for owner %d", p.ID, p.Name, p.OwnerID)
	return nil
}

// UpdatePlant saves the plant attributes. The event reference is left untouched
// and a zero LastWatered keeps the stored date.
func (r *SQLiteRepository) UpdatePlant(ctx context.Context, p entities.Plant) error {
	var lastWatered any
	if !p.LastWatered.IsZero() {
		lastWatered = formatDay(p.LastWatered)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE plants SET name = ?, kind = ?, pot_liters = ?, size = ?, flowering = ?, mode = ?,
			last_watered = COALESCE(?, last_watered)
		WHERE id = ?`,
		p.Name, p.Kind, p.PotLiters, p.Size, p.Flowering, p.Mode, lastWatered, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plant %d: %w", p.ID, err)
	}
	return expectOne(res, "plant", p.ID)
}

// GetPlant retrieves a plant by id
func (r *SQLiteRepository) GetPlant(ctx context.Context, id int64) (*entities.Plant, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+plantColumns+` FROM plants WHERE id = ?`, id)
	p, err := scanPlant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plant %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get plant %d: %w", id, err)
	}
	return &p, nil
}

// ListPlantsByOwner returns every plant of an owner
func (r *SQLiteRepository) ListPlantsByOwner(ctx context.Context, ownerID int64) ([]entities.Plant, error) {
	return r.queryPlants(ctx, `SELECT `+plantColumns+` FROM plants WHERE owner_id = ? ORDER BY id`, ownerID)
}

// ListOutdoorPlants returns the owner's plants affected by weather
func (r *SQLiteRepository) ListOutdoorPlants(ctx context.Context, ownerID int64) ([]entities.Plant, error) {
	return r.queryPlants(ctx, `SELECT `+plantColumns+` FROM plants WHERE owner_id = ? AND mode = ? ORDER BY id`,
		ownerID, entities.ModeOutdoor)
}

// ListPlantsWithoutEvent returns the owner's plants that have no calendar event
func (r *SQLiteRepository) ListPlantsWithoutEvent(ctx context.Context, ownerID int64) ([]entities.Plant, error) {
	return r.queryPlants(ctx, `SELECT `+plantColumns+` FROM plants
		WHERE owner_id = ? AND (calendar_event_id IS NULL OR calendar_event_id = '') ORDER BY id`, ownerID)
}

// DeletePlant removes a plant and, through the foreign key, its watering records
func (r *SQLiteRepository) DeletePlant(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM plants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plant %d: %w", id, err)
	}
	return expectOne(res, "plant", id)
}

// SetPlantEventID writes only the calendar event reference. An empty id clears it.
func (r *SQLiteRepository) SetPlantEventID(ctx context.Context, id int64, eventID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE plants SET calendar_event_id = ? WHERE id = ?`, nullString(eventID), id)
	if err != nil {
		return fmt.Errorf("failed to set event id for plant %d: %w", id, err)
	}
	return expectOne(res, "plant", id)
}

// SetPlantLastWatered writes only the last-watered date
func (r *SQLiteRepository) SetPlantLastWatered(ctx context.Context, id int64, date time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE plants SET last_watered = ? WHERE id = ?`, formatDay(date), id)
	if err != nil {
		return fmt.Errorf("failed to set last watered for plant %d: %w", id, err)
	}
	return expectOne(res, "plant", id)
}

// AddWateringRecord stores a watering record and sets its ID
func (r *SQLiteRepository) AddWateringRecord(ctx context.Context, rec *entities.WateringRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO watering_records(plant_id, date, amount_ml, ph, ec, supplements, comments, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PlantID, formatDay(rec.Date), rec.AmountML, nullFloat(rec.PH), nullFloat(rec.EC),
		rec.Supplements, rec.Comments, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert watering record for plant %d: %w", rec.PlantID, err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read watering record id: %w", err)
	}
	return nil
}

// ListWateringRecords returns the newest records of a plant first. limit <= 0 returns all.
func (r *SQLiteRepository) ListWateringRecords(ctx context.Context, plantID int64, limit int) ([]entities.WateringRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plant_id, date, amount_ml, ph, ec, supplements, comments, created_at
		FROM watering_records
		WHERE plant_id = ?
		ORDER BY date DESC, id DESC
		LIMIT ?`, plantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query watering records for plant %d: %w", plantID, err)
	}
	defer rows.Close()

	var result []entities.WateringRecord
	for rows.Next() {
		var rec entities.WateringRecord
		var date string
		var ph, ec sql.NullFloat64
		var createdAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.PlantID, &date, &rec.AmountML, &ph, &ec, &rec.Supplements, &rec.Comments, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if rec.Date, err = entities.ParseDay(date); err != nil {
			return nil, fmt.Errorf("failed to parse record date '%s': %w", date, err)
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		rec.PH = floatPtr(ph)
		rec.EC = floatPtr(ec)
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// GetWateringStats aggregates the watering history of a plant
func (r *SQLiteRepository) GetWateringStats(ctx context.Context, plantID int64) (entities.WateringStats, error) {
	var stats entities.WateringStats
	var first, last sql.NullString
	var avg sql.NullFloat64
	var total, maxML, minML sql.NullInt64

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(amount_ml), AVG(NULLIF(amount_ml, 0)), MAX(amount_ml), MIN(NULLIF(amount_ml, 0)), MIN(date), MAX(date)
		FROM watering_records WHERE plant_id = ?`, plantID,
	).Scan(&stats.Count, &total, &avg, &maxML, &minML, &first, &last)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate watering records for plant %d: %w", plantID, err)
	}
	if stats.Count == 0 {
		return stats, nil
	}

	stats.TotalML = int(total.Int64)
	stats.AverageML = avg.Float64
	stats.MaxML = int(maxML.Int64)
	stats.MinML = int(minML.Int64)
	if stats.First, err = entities.ParseDay(first.String); err != nil {
		return stats, fmt.Errorf("failed to parse date '%s': %w", first.String, err)
	}
	if stats.Last, err = entities.ParseDay(last.String); err != nil {
		return stats, fmt.Errorf("failed to parse date '%s': %w", last.String, err)
	}
	if stats.Count > 1 {
		stats.AverageInterval = float64(entities.DaysBetween(stats.First, stats.Last)) / float64(stats.Count-1)
	}
	return stats, nil
}
