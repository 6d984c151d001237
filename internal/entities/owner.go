package entities

import (
	"fmt"
	"time"
)

// DefaultCalendarID is used when an owner has not chosen a calendar
const DefaultCalendarID = "primary"

// DefaultTimezone is the timezone reminders are created in
const DefaultTimezone = "America/Argentina/Cordoba"

// Owner holds the per-user preferences the engine needs
type Owner struct {
	ID             int64 // Telegram user id
	Username       string
	ChatID         int64
	CalendarID     string
	ReminderHour   int
	ReminderMinute int
	Timezone       string
	IndoorTemp     *float64 // Indoor ambient temperature in °C
	IndoorHumidity *float64 // Indoor relative humidity in %
	CreatedAt      time.Time
}

// NewOwner returns an owner with default preferences
func NewOwner(id int64, username string, chatID int64) Owner {
	return Owner{
		ID:           id,
		Username:     username,
		ChatID:       chatID,
		CalendarID:   DefaultCalendarID,
		ReminderHour: 9,
		Timezone:     DefaultTimezone,
	}
}

// Location loads the owner's timezone, falling back to the default one
func (o Owner) Location() *time.Location {
	name := o.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ValidateReminderTime checks an hour and minute pair
func ValidateReminderTime(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return &ValidationError{Field: "reminder_time", Reason: fmt.Sprintf("%02d:%02d is not a valid time", hour, minute)}
	}
	return nil
}

// ValidateIndoorClimate checks the indoor climate ranges accepted by the calculator
func ValidateIndoorClimate(temp, humidity *float64) error {
	if temp != nil && (*temp < -10 || *temp > 50) {
		return &ValidationError{Field: "indoor_temperature", Reason: "must be between -10 and 50 °C"}
	}
	if humidity != nil && (*humidity < 0 || *humidity > 100) {
		return &ValidationError{Field: "indoor_humidity", Reason: "must be between 0 and 100 %"}
	}
	return nil
}

// Credential stores the OAuth tokens of an owner's calendar link
type Credential struct {
	OwnerID      int64
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	UpdatedAt    time.Time
}
