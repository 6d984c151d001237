package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelzeko/riego-bot/internal/api"
	"github.com/abelzeko/riego-bot/internal/app"
	"github.com/abelzeko/riego-bot/internal/config"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Starting Riego Bot...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.RequireGoogle(); err != nil {
		log.Fatal(err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	telegramBot, err := api.NewTelegramBot(cfg.TelegramToken, a.Plants, a.Accounts, cfg.ExternalTimeout*2)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram bot: %v", err)
	}
	a.Accounts.SetNotifier(telegramBot)

	server := api.NewHTTPServer(cfg.HTTPAddr, cfg.JWTSecret, a.Plants, a.Accounts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Printf("HTTP server failed: %v", err)
			stop()
		}
	}()

	telegramBot.Start(ctx)
	log.Println("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown failed: %v", err)
	}
	a.Close(shutdownCtx)
	log.Println("Riego Bot stopped")
}
