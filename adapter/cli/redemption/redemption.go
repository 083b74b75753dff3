package redemption

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
	"github.com/felixgeelhaar/gadfly/internal/engine"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
)

// Cmd is the redemption command group
var Cmd = &cobra.Command{
	Use:   "redemption",
	Short: "Review reward requests",
	Long:  `Approve, fulfill or deny pending reward requests. Denied requests are refunded.`,
}

type decision func(*engine.Engine, context.Context, string) (rewardsDomain.Redemption, error)

func decideCmd(use, short, verb string, decide decision) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <redemption-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.RequireApp()
			if err != nil {
				return err
			}
			r, err := decide(app.Engine(), cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to %s %s: %w", use, args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", verb, r.ID, r.RewardID)
			return nil
		},
	}
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List reward requests",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		eng := app.Engine()
		out := cmd.OutOrStdout()
		list := eng.Redemptions()
		if len(list) == 0 {
			fmt.Fprintln(out, "No redemptions.")
			return nil
		}
		for _, r := range list {
			fmt.Fprintf(out, "  %s  %-12s %-9s %6s pts  %s\n",
				r.ID, r.RewardID, r.Status, humanize.Comma(r.Points),
				humanize.RelTime(r.RequestedAt, eng.Now(), "ago", "from now"))
		}
		return nil
	},
}

func init() {
	Cmd.AddCommand(decideCmd("approve", "Approve a pending request", "Approved", (*engine.Engine).ApproveRedemption))
	Cmd.AddCommand(decideCmd("fulfill", "Mark an approved request as fulfilled", "Fulfilled", (*engine.Engine).FulfillRedemption))
	Cmd.AddCommand(decideCmd("deny", "Deny a request and refund its points", "Denied", (*engine.Engine).DenyRedemption))
	Cmd.AddCommand(listCmd)
}
