// Package repository provides data access implementations
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// PlantRepository defines plant and watering-record persistence.
// SetPlantEventID and SetPlantLastWatered are field-scoped writes: they touch a
// single column and never go through the plant mutation path.
type PlantRepository interface {
	CreatePlant(ctx context.Context, p *entities.Plant) error
	UpdatePlant(ctx context.Context, p entities.Plant) error
	GetPlant(ctx context.Context, id int64) (*entities.Plant, error)
	ListPlantsByOwner(ctx context.Context, ownerID int64) ([]entities.Plant, error)
	ListOutdoorPlants(ctx context.Context, ownerID int64) ([]entities.Plant, error)
	ListPlantsWithoutEvent(ctx context.Context, ownerID int64) ([]entities.Plant, error)
	DeletePlant(ctx context.Context, id int64) error
	SetPlantEventID(ctx context.Context, id int64, eventID string) error
	SetPlantLastWatered(ctx context.Context, id int64, date time.Time) error

	AddWateringRecord(ctx context.Context, r *entities.WateringRecord) error
	ListWateringRecords(ctx context.Context, plantID int64, limit int) ([]entities.WateringRecord, error)
	GetWateringStats(ctx context.Context, plantID int64) (entities.WateringStats, error)
}

// OwnerRepository defines owner preference persistence
type OwnerRepository interface {
	SaveOwner(ctx context.Context, o entities.Owner) error
	GetOwner(ctx context.Context, id int64) (*entities.Owner, error)
	SetReminderTime(ctx context.Context, id int64, hour, minute int) error
	SetIndoorClimate(ctx context.Context, id int64, temp, humidity *float64) error
}

// LocationRepository defines location and climate sample persistence
type LocationRepository interface {
	SaveLocation(ctx context.Context, l *entities.Location) error
	GetLocationByOwner(ctx context.Context, ownerID int64) (*entities.Location, error)
	ListActiveLocations(ctx context.Context) ([]entities.Location, error)
	TouchClimateFetch(ctx context.Context, locationID int64, at time.Time) error

	UpsertClimateSample(ctx context.Context, s entities.ClimateSample) (*entities.ClimateSample, error)
	MarkSampleProcessed(ctx context.Context, sampleID int64) error
	LatestClimateSample(ctx context.Context, locationID int64) (*entities.ClimateSample, error)
}

// CredentialRepository defines calendar credential persistence
type CredentialRepository interface {
	GetCredential(ctx context.Context, ownerID int64) (*entities.Credential, error)
	SaveCredential(ctx context.Context, c entities.Credential) error
	DeleteCredential(ctx context.Context, ownerID int64) error
}

// Repository groups every store the application uses
type Repository interface {
	PlantRepository
	OwnerRepository
	LocationRepository
	CredentialRepository
	Close() error
}

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db     *sql.DB
	DBPath string
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS owners (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	chat_id INTEGER NOT NULL DEFAULT 0,
	calendar_id TEXT NOT NULL DEFAULT 'primary',
	reminder_hour INTEGER NOT NULL DEFAULT 9,
	reminder_minute INTEGER NOT NULL DEFAULT 0,
	timezone TEXT NOT NULL DEFAULT '',
	indoor_temp REAL,
	indoor_humidity REAL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS plants (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'photo',
	pot_liters REAL NOT NULL,
	size TEXT NOT NULL,
	flowering INTEGER NOT NULL DEFAULT 0,
	mode TEXT NOT NULL,
	last_watered TEXT NOT NULL,
	calendar_event_id TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plants_owner ON plants(owner_id);
CREATE TABLE IF NOT EXISTS watering_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	plant_id INTEGER NOT NULL REFERENCES plants(id) ON DELETE CASCADE,
	date TEXT NOT NULL,
	amount_ml INTEGER NOT NULL DEFAULT 0,
	ph REAL,
	ec REAL,
	supplements TEXT NOT NULL DEFAULT '',
	comments TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_plant ON watering_records(plant_id, date);
CREATE TABLE IF NOT EXISTS locations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL UNIQUE REFERENCES owners(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	last_climate_fetch TEXT
);
CREATE TABLE IF NOT EXISTS climate_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	date TEXT NOT NULL,
	max_temp REAL NOT NULL,
	min_temp REAL NOT NULL,
	mean_humidity REAL NOT NULL,
	precipitation_mm REAL NOT NULL,
	wind_kmh REAL NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	processed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	UNIQUE(location_id, date)
);
CREATE TABLE IF NOT EXISTS credentials (
	owner_id INTEGER PRIMARY KEY REFERENCES owners(id) ON DELETE CASCADE,
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	expiry TEXT,
	updated_at TEXT NOT NULL
);`

// NewSQLiteRepository creates and initializes a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath == "" {
		// Set default path if not specified
		dbDir := "data"
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dbPath = filepath.Join(dbDir, "riego.db")
	}

	log.Printf("Opening database at %s", dbPath)
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers coming from the bot, the API and background tasks
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		DBPath: dbPath,
	}, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", s.String, err)
	}
	return t, nil
}

func formatDay(t time.Time) string {
	return entities.Day(t).Format(entities.DateLayout)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// expectOne turns an update that matched nothing into ErrNotFound
func expectOne(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
