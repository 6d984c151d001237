package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

// SaveOwner inserts an owner or updates its contact and calendar fields.
// Reminder time and indoor climate have their own setters.
func (r *SQLiteRepository) SaveOwner(ctx context.Context, o entities.Owner) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.CalendarID == "" {
		o.CalendarID = entities.DefaultCalendarID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO owners(id, username, chat_id, calendar_id, reminder_hour, reminder_minute, timezone, indoor_temp, indoor_humidity, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		username=excluded.username,
		chat_id=excluded.chat_id,
		calendar_id=excluded.calendar_id,
		timezone=excluded.timezone`,
		o.ID, o.Username, o.ChatID, o.CalendarID, o.ReminderHour, o.ReminderMinute, o.Timezone,
		nullFloat(o.IndoorTemp), nullFloat(o.IndoorHumidity), formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save owner %d: %w", o.ID, err)
	}
	return nil
}

// GetOwner retrieves an owner by id
func (r *SQLiteRepository) GetOwner(ctx context.Context, id int64) (*entities.Owner, error) {
	var o entities.Owner
	var temp, humidity sql.NullFloat64
	var createdAt sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, chat_id, calendar_id, reminder_hour, reminder_minute, timezone, indoor_temp, indoor_humidity, created_at
		FROM owners WHERE id = ?`, id,
	).Scan(&o.ID, &o.Username, &o.ChatID, &o.CalendarID, &o.ReminderHour, &o.ReminderMinute, &o.Timezone, &temp, &humidity, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("owner %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get owner %d: %w", id, err)
	}

	o.IndoorTemp = floatPtr(temp)
	o.IndoorHumidity = floatPtr(humidity)
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// SetReminderTime stores the preferred time of day for reminders
func (r *SQLiteRepository) SetReminderTime(ctx context.Context, id int64, hour, minute int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE owners SET reminder_hour = ?, reminder_minute = ? WHERE id = ?`, hour, minute, id)
	if err != nil {
		return fmt.Errorf("failed to set reminder time for owner %d: %w", id, err)
	}
	return expectOne(res, "owner", id)
}

// SetIndoorClimate stores the owner's indoor temperature and humidity. nil clears a value.
func (r *SQLiteRepository) SetIndoorClimate(ctx context.Context, id int64, temp, humidity *float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE owners SET indoor_temp = ?, indoor_humidity = ? WHERE id = ?`,
		nullFloat(temp), nullFloat(humidity), id)
	if err != nil {
		return fmt.Errorf("failed to set indoor climate for owner %d: %w", id, err)
	}
	return expectOne(res, "owner", id)
}
