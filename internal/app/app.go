// Package app wires repositories, integrations and use cases from a Config
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/abelzeko/riego-bot/internal/config"
	"github.com/abelzeko/riego-bot/internal/integration"
	"github.com/abelzeko/riego-bot/internal/integration/openai"
	"github.com/abelzeko/riego-bot/internal/repository"
	"github.com/abelzeko/riego-bot/internal/usecases"
)

// App holds the shared components of every binary
type App struct {
	Config    config.Config
	Repo      *repository.SQLiteRepository
	OAuth     *integration.GoogleOAuth
	Creds     *usecases.CredentialManager
	Calendar  *usecases.CalendarSync
	Scheduler *usecases.RecalculationScheduler
	Tasks     *usecases.TaskQueue
	Plants    *usecases.PlantUseCase
	Accounts  *usecases.AccountUseCase
}

// New opens the database and builds every component. The scheduler is left stopped.
func New(cfg config.Config) (*App, error) {
	repo, err := repository.NewSQLiteRepository(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	weather := []integration.WeatherProvider{integration.NewWeatherClient(cfg.WeatherURL, cfg.GoogleAPIKey, cfg.ExternalTimeout)}
	if cfg.StationsURL != "" {
		weather = append(weather, integration.NewWeatherScraper(cfg.StationsURL, cfg.ExternalTimeout))
	}
	geocoder := integration.NewGeocoder(cfg.GeocodeURL, cfg.GoogleAPIKey, cfg.ExternalTimeout)
	oauth := integration.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	var agent openai.OpenAIService
	if cfg.OpenAIKey != "" {
		agent, err = openai.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to initialize OpenAI service: %w", err)
		}
	} else {
		log.Println("OPENAI_API_KEY not set, free text messages are disabled")
	}

	creds := usecases.NewCredentialManager(repo, oauth, cfg.TokenMargin, cfg.ExternalTimeout)
	calendar := usecases.NewCalendarSync(creds, repo, repo, cfg.ReminderMinutes, cfg.ExternalTimeout)
	scheduler := usecases.NewRecalculationScheduler(repo, integration.NewFallbackWeather(weather...), calendar, usecases.SchedulerOptions{
		Spec:           cfg.ScheduleSpec,
		Location:       cfg.ScheduleLocation(),
		DayLocation:    cfg.Location(),
		WeatherTimeout: cfg.ExternalTimeout,
	})
	tasks := usecases.NewTaskQueue(cfg.QueueSize, cfg.Workers, 2*time.Minute)

	return &App{
		Config:    cfg,
		Repo:      repo,
		OAuth:     oauth,
		Creds:     creds,
		Calendar:  calendar,
		Scheduler: scheduler,
		Tasks:     tasks,
		Plants:    usecases.NewPlantUseCase(repo, scheduler, calendar, tasks, agent),
		Accounts:  usecases.NewAccountUseCase(repo, creds, oauth, geocoder, scheduler, calendar, tasks),
	}, nil
}

// Close stops the scheduler, drains queued tasks and closes the database
func (a *App) Close(ctx context.Context) {
	a.Scheduler.Stop()
	if err := a.Tasks.Stop(ctx); err != nil {
		log.Printf("Task queue did not drain: %v", err)
	}
	if err := a.Repo.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}
