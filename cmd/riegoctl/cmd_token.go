package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/riego-bot/internal/api"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for an owner",
	Long:  `Issue a signed bearer token for the HTTP API. The owner ID is the owner's Telegram user ID.`,
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Int64("owner", 0, "owner ID")
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("owner")
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := application.Config.JWTSecret
	if secret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	ownerID, _ := cmd.Flags().GetInt64("owner")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	if err := application.Accounts.EnsureOwner(cmd.Context(), ownerID); err != nil {
		return err
	}
	token, expiresAt, err := api.IssueToken([]byte(secret), ownerID, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Printf("expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
