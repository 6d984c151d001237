package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/abelzeko/riego-bot/internal/app"
	"github.com/abelzeko/riego-bot/internal/config"
	"github.com/spf13/cobra"
)

var application *app.App

var rootCmd = &cobra.Command{
	Use:   "riegoctl",
	Short: "riegoctl - Riego Bot maintenance tool",
	Long: `riegoctl runs recalculations, calendar backfills and other maintenance
tasks against the Riego Bot database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		application, err = app.New(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		application.Close(ctx)
	},
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
