package main

import (
	"fmt"
	"time"

	"github.com/abelzeko/riego-bot/internal/usecases"
	"github.com/spf13/cobra"
)

var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Run the daily recalculation now",
	Long:  `Run the daily recalculation for every location, or only for one owner with --owner.`,
	RunE:  runRecalc,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Create missing calendar events for an owner",
	RunE:  runBackfill,
}

var checkMissedCmd = &cobra.Command{
	Use:   "check-missed",
	Short: "List locations whose daily weather is missing",
	RunE:  runCheckMissed,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watering schedule of a plant",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(recalcCmd, backfillCmd, checkMissedCmd, statusCmd)

	recalcCmd.Flags().Int64("owner", 0, "only recalculate this owner's location")
	backfillCmd.Flags().Int64("owner", 0, "owner whose plants get events")
	_ = backfillCmd.MarkFlagRequired("owner")
	statusCmd.Flags().Int64("plant", 0, "plant ID")
	_ = statusCmd.MarkFlagRequired("plant")
}

func runRecalc(cmd *cobra.Command, args []string) error {
	ownerID, _ := cmd.Flags().GetInt64("owner")

	var report *usecases.BatchReport
	if ownerID > 0 {
		var err error
		report, err = application.Scheduler.RunForOwner(cmd.Context(), ownerID)
		if err != nil {
			return fmt.Errorf("recalculation failed: %w", err)
		}
	} else {
		report = application.Scheduler.RunDaily(cmd.Context())
	}
	printReport(report)
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ownerID, _ := cmd.Flags().GetInt64("owner")
	report, err := application.Scheduler.Backfill(cmd.Context(), ownerID)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	printReport(report)
	return nil
}

func runCheckMissed(cmd *cobra.Command, args []string) error {
	missed, err := application.Scheduler.CheckMissedDays(cmd.Context())
	if err != nil {
		return fmt.Errorf("missed days check failed: %w", err)
	}
	if len(missed) == 0 {
		fmt.Println("All locations are up to date")
		return nil
	}
	for _, m := range missed {
		last := "never"
		if !m.LastSample.IsZero() {
			last = m.LastSample.Format(time.DateOnly)
		}
		fmt.Printf("%d\t%s\tlast sample %s\t%d day(s) missing\n", m.LocationID, m.Name, last, m.Days)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	plantID, _ := cmd.Flags().GetInt64("plant")
	plant, err := application.Repo.GetPlant(cmd.Context(), plantID)
	if err != nil {
		return fmt.Errorf("failed to load plant %d: %w", plantID, err)
	}
	status, err := application.Plants.GetPlantStatus(cmd.Context(), plant.OwnerID, plant.ID)
	if err != nil {
		return err
	}
	fmt.Println(usecases.FormatPlantStatus(*status))
	return nil
}

func printReport(report *usecases.BatchReport) {
	fmt.Println(report.Summary())
	for _, msg := range report.Messages() {
		fmt.Println("  " + msg)
	}
}
