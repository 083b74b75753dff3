package ledger

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show balance, lifetime points and streak",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		v := app.Engine().Ledger()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Balance:   %s pts\n", humanize.Comma(v.Balance))
		fmt.Fprintf(out, "Lifetime:  %s pts\n", humanize.Comma(v.Lifetime))
		fmt.Fprintf(out, "Streak:    %d day(s), longest %d\n", v.Streak.Current, v.Streak.Longest)
		fmt.Fprintf(out, "Today:     %d completed\n", v.CompletedToday)
		return nil
	},
}
