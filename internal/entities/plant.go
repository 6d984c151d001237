// Package entities contains the core domain objects for the riego-bot application
package entities

import (
	"fmt"
	"strings"
	"time"
)

// SizeCategory is the coarse size of a plant
type SizeCategory string

const (
	SizeSmall  SizeCategory = "small"
	SizeMedium SizeCategory = "medium"
	SizeLarge  SizeCategory = "large"
)

// ParseSizeCategory accepts english and spanish spellings
func ParseSizeCategory(s string) (SizeCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small", "s", "pequeña", "pequena", "chica":
		return SizeSmall, nil
	case "medium", "m", "mediana", "":
		return SizeMedium, nil
	case "large", "l", "grande":
		return SizeLarge, nil
	}
	return "", &ValidationError{Field: "size", Reason: fmt.Sprintf("unknown size %q", s)}
}

// CultivationMode tells whether a plant lives indoors or outdoors
type CultivationMode string

const (
	ModeIndoor  CultivationMode = "indoor"
	ModeOutdoor CultivationMode = "outdoor"
)

// ParseCultivationMode accepts english and spanish spellings
func ParseCultivationMode(s string) (CultivationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "indoor", "interior", "indoors", "":
		return ModeIndoor, nil
	case "outdoor", "exterior", "outdoors":
		return ModeOutdoor, nil
	}
	return "", &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown cultivation mode %q", s)}
}

// PlantKind is informational and only shown in reminders
type PlantKind string

const (
	KindAuto  PlantKind = "auto"
	KindPhoto PlantKind = "photo"
)

// Plant represents a single plant tracked by an owner
type Plant struct {
	ID          int64
	OwnerID     int64
	Name        string          // Display name used in reminders
	Kind        PlantKind       // Autoflowering or photoperiodic
	PotLiters   float64         // Pot volume in liters
	Size        SizeCategory    // Small, medium or large
	Flowering   bool            // True while the plant is in bloom
	Mode        CultivationMode // Indoor or outdoor
	LastWatered time.Time       // Date of the last watering (day precision)
	EventID     string          // External calendar event id, empty when none
	CreatedAt   time.Time
}

// IsOutdoor reports whether the plant is affected by local weather
func (p Plant) IsOutdoor() bool {
	return p.Mode == ModeOutdoor
}

// HasEvent reports whether the plant currently references an external event
func (p Plant) HasEvent() bool {
	return p.EventID != ""
}

// Validate checks the attributes a plant must carry before it is stored
func (p Plant) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.PotLiters <= 0 {
		return &ValidationError{Field: "pot_liters", Reason: "must be greater than zero"}
	}
	switch p.Size {
	case SizeSmall, SizeMedium, SizeLarge:
	default:
		return &ValidationError{Field: "size", Reason: fmt.Sprintf("unknown size %q", p.Size)}
	}
	switch p.Mode {
	case ModeIndoor, ModeOutdoor:
	default:
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown cultivation mode %q", p.Mode)}
	}
	if p.LastWatered.IsZero() {
		return &ValidationError{Field: "last_watered", Reason: "is required"}
	}
	return nil
}

// WateringRecord is a single logged watering of a plant
type WateringRecord struct {
	ID          int64
	PlantID     int64
	Date        time.Time
	AmountML    int      // 0 when unknown
	PH          *float64 // Optional, 0-14
	EC          *float64 // Optional electrical conductivity, mS/cm
	Supplements string
	Comments    string
	CreatedAt   time.Time
}

// Validate checks the optional measurements of a watering record
func (r WateringRecord) Validate() error {
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if r.AmountML < 0 {
		return &ValidationError{Field: "amount_ml", Reason: "must not be negative"}
	}
	if r.PH != nil && (*r.PH < 0 || *r.PH > 14) {
		return &ValidationError{Field: "ph", Reason: "must be between 0 and 14"}
	}
	if r.EC != nil && *r.EC < 0 {
		return &ValidationError{Field: "ec", Reason: "must not be negative"}
	}
	return nil
}

// WateringStats summarizes the watering history of a plant
type WateringStats struct {
	Count           int
	TotalML         int
	AverageML       float64
	MaxML           int
	MinML           int
	First           time.Time
	Last            time.Time
	AverageInterval float64 // Days between consecutive waterings
}
