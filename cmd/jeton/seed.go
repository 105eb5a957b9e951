package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo user with a funded points account",
	RunE:  runSeed,
}

var seedEmail string

func init() {
	seedCmd.Flags().StringVar(&seedEmail, "email", "demo@jeton.local", "email of the demo user")
	rootCmd.AddCommand(seedCmd)
}

const demoRecharge = 1000

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	points := ledger.New(store.ledger, nil)
	users := user.NewService(store.users, points, cfg.SignupBonus, nil)

	reg, err := users.Register(ctx, user.CreateUserInput{
		Name:      "Demo User",
		Email:     seedEmail,
		RateLimit: 120,
	})
	if errors.Is(err, user.ErrDuplicate) {
		slog.Info("demo user already exists, skipping seed", "email", seedEmail)
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating demo user: %w", err)
	}

	balance, err := points.Credit(ctx, reg.User.ID, demoRecharge, "demo recharge", ledger.Recharge)
	if err != nil {
		return fmt.Errorf("funding demo user: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Demo Data Seeded ===\n")
	fmt.Fprintf(out, "User:      %s (%s)\n", reg.User.Name, reg.User.ID)
	fmt.Fprintf(out, "Balance:   %d points\n", balance)
	fmt.Fprintf(out, "API Key:   %s\n", reg.APIKey)
	fmt.Fprintf(out, "\nTry it:\n")
	fmt.Fprintf(out, "  curl http://localhost:%d/api/v1/functions\n", cfg.Server.Port)
	fmt.Fprintf(out, "  curl -H 'Authorization: Bearer %s' -d '{\"input\":\"Hello!\"}' http://localhost:%d/api/v1/ai/chat\n", reg.APIKey, cfg.Server.Port)
	return nil
}
