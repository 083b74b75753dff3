package ledger

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
)

var redeemCmd = &cobra.Command{
	Use:   "redeem <reward-id>",
	Short: "Spend points on a reward",
	Long: `Request a reward from the catalog. The cost is debited now and
refunded if the request is denied.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		r, err := app.Engine().RequestRedemption(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to redeem %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requested %s for %s pts (redemption %s, %s)\n",
			r.RewardID, humanize.Comma(r.Points), r.ID, r.Status)
		return nil
	},
}

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "List the reward catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		balance := app.Engine().Ledger().Balance
		for _, r := range app.Engine().Rewards() {
			mark := " "
			if r.Cost <= balance {
				mark = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-12s %-30s %s pts\n", mark, r.ID, r.Title, humanize.Comma(r.Cost))
		}
		return nil
	},
}
