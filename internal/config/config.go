// Package config loads runtime settings from .env, an optional YAML file and the environment
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the riego-bot binaries
type Config struct {
	DBPath string `yaml:"db_path"`

	TelegramToken string `yaml:"telegram_token"`
	HTTPAddr      string `yaml:"http_addr"`
	JWTSecret     string `yaml:"jwt_secret"`

	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	GoogleRedirectURL  string `yaml:"google_redirect_url"`
	GoogleAPIKey       string `yaml:"google_api_key"`

	WeatherURL      string `yaml:"weather_url"`
	StationsURL     string `yaml:"stations_url"`
	GeocodeURL      string `yaml:"geocode_url"`
	OpenAIKey       string `yaml:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model"`
	Timezone        string `yaml:"timezone"`
	ScheduleSpec    string `yaml:"schedule"`
	ScheduleTZ      string `yaml:"schedule_timezone"`
	ReminderMinutes int    `yaml:"reminder_minutes"`

	TokenMargin     time.Duration `yaml:"token_margin"`
	ExternalTimeout time.Duration `yaml:"external_timeout"`
	QueueSize       int           `yaml:"queue_size"`
	Workers         int           `yaml:"workers"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		Timezone:        "America/Argentina/Cordoba",
		ScheduleSpec:    "0 3 * * *",
		ScheduleTZ:      "UTC",
		ReminderMinutes: 60,
		TokenMargin:     5 * time.Minute,
		ExternalTimeout: 15 * time.Second,
		QueueSize:       64,
		Workers:         2,
	}
}

// Load reads .env (if present), then the YAML file named by RIEGO_CONFIG (if set),
// then environment variables. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg := Default()
	if path := os.Getenv("RIEGO_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	log.Printf("Loaded configuration from %s", path)
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"DB_PATH":              &c.DBPath,
		"TELEGRAM_BOT_TOKEN":   &c.TelegramToken,
		"HTTP_ADDR":            &c.HTTPAddr,
		"JWT_SECRET":           &c.JWTSecret,
		"GOOGLE_CLIENT_ID":     &c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": &c.GoogleClientSecret,
		"GOOGLE_REDIRECT_URL":  &c.GoogleRedirectURL,
		"GOOGLE_API_KEY":       &c.GoogleAPIKey,
		"WEATHER_URL":          &c.WeatherURL,
		"STATIONS_URL":         &c.StationsURL,
		"GEOCODE_URL":          &c.GeocodeURL,
		"OPENAI_API_KEY":       &c.OpenAIKey,
		"OPENAI_MODEL":         &c.OpenAIModel,
		"TIMEZONE":             &c.Timezone,
		"SCHEDULE":             &c.ScheduleSpec,
		"SCHEDULE_TIMEZONE":    &c.ScheduleTZ,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REMINDER_MINUTES": &c.ReminderMinutes,
		"QUEUE_SIZE":       &c.QueueSize,
		"WORKERS":          &c.Workers,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"TOKEN_MARGIN":     &c.TokenMargin,
		"EXTERNAL_TIMEOUT": &c.ExternalTimeout,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c Config) validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := time.LoadLocation(c.ScheduleTZ); err != nil {
		return fmt.Errorf("invalid schedule timezone %q: %w", c.ScheduleTZ, err)
	}
	if c.ReminderMinutes < 0 {
		return fmt.Errorf("reminder minutes must not be negative, got %d", c.ReminderMinutes)
	}
	if c.QueueSize < 1 || c.Workers < 1 {
		return fmt.Errorf("queue size and workers must be positive, got %d and %d", c.QueueSize, c.Workers)
	}
	if c.ExternalTimeout <= 0 {
		return fmt.Errorf("external timeout must be positive, got %s", c.ExternalTimeout)
	}
	return nil
}

// RequireTelegram checks the settings needed by the bot
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	return nil
}

// RequireGoogle checks the settings needed for calendar and weather access
func (c Config) RequireGoogle() error {
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}
	if c.GoogleRedirectURL == "" {
		return errors.New("GOOGLE_REDIRECT_URL is not set")
	}
	return nil
}

// Location returns the timezone used for reminder days
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScheduleLocation returns the timezone of the daily batch
func (c Config) ScheduleLocation() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
