package ledger

import (
	"github.com/spf13/cobra"
)

// Cmd is the ledger command group
var Cmd = &cobra.Command{
	Use:   "ledger",
	Short: "Points balance, credits and reward redemptions",
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(creditCmd)
	Cmd.AddCommand(redeemCmd)
	Cmd.AddCommand(rewardsCmd)
}
