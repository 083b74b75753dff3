package ledger

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
	"github.com/felixgeelhaar/gadfly/internal/engine"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
)

var (
	creditReason string
	creditRef    string
)

var creditCmd = &cobra.Command{
	Use:   "credit <points>",
	Short: "Add points to the balance",
	Long: `Credit points by hand.

A --ref makes the credit idempotent: crediting the same ref twice adds
the points once.

Examples:
  gadfly ledger credit 50
  gadfly ledger credit 50 --ref gym-2026-07-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid points %q: %w", args[0], err)
		}

		v, err := app.Engine().Credit(cmd.Context(), engine.CreditRequest{
			Amount: amount,
			Reason: rewardsDomain.Reason(creditReason),
			Ref:    creditRef,
		})
		if err != nil {
			return fmt.Errorf("failed to credit: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Balance: %s pts\n", humanize.Comma(v.Balance))
		return nil
	},
}

func init() {
	creditCmd.Flags().StringVar(&creditReason, "reason", string(rewardsDomain.ReasonManual), "credit reason")
	creditCmd.Flags().StringVar(&creditRef, "ref", "", "idempotency reference")
}
