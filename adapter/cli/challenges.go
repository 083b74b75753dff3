package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var challengesCmd = &cobra.Command{
	Use:   "challenges",
	Short: "Show today's challenges",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		set := a.Engine().Challenges()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Challenges for %s\n", set.Day)
		if len(set.Challenges) == 0 {
			fmt.Fprintln(out, "  none configured")
		}
		for _, c := range set.Challenges {
			mark := " "
			if c.Completed {
				mark = "x"
			}
			fmt.Fprintf(out, "  [%s] %-30s %d/%d  +%s pts\n",
				mark, c.Title, c.Progress, c.Target, humanize.Comma(c.BonusPoints))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(challengesCmd)
}
