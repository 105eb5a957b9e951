package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alecgard/jeton/internal/ledger"
)

var creditCmd = &cobra.Command{
	Use:   "credit <user-id> <amount>",
	Short: "Credit points to a user's account",
	Args:  cobra.ExactArgs(2),
	RunE:  runCredit,
}

var (
	creditType   string
	creditReason string
)

func init() {
	creditCmd.Flags().StringVar(&creditType, "type", string(ledger.Recharge), "transaction type: RECHARGE, BONUS or REFUND")
	creditCmd.Flags().StringVar(&creditReason, "reason", "manual credit", "description stored on the transaction")
	rootCmd.AddCommand(creditCmd)
}

func runCredit(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("amount must be an integer: %w", err)
	}

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
	balance, err := points.Credit(ctx, args[0], amount, creditReason, ledger.TxType(strings.ToUpper(creditType)))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "credited %d points to %s; balance is now %d\n", amount, args[0], balance)
	return nil
}
