package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Fire every due nag once",
	Long: `Run one nag tick at the current time and print what fired.

Useful from cron or a systemd timer when no worker runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		res, err := a.Engine().Tick(cmd.Context())
		if err != nil {
			return fmt.Errorf("tick failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(res.Fires) == 0 {
			fmt.Fprintln(out, "Nothing due.")
		}
		for _, f := range res.Fires {
			fmt.Fprintf(out, "  %-20s %s\n", f.TaskID, f.Message)
		}
		if res.Suppressed > 0 {
			fmt.Fprintf(out, "%d nag(s) held back while notifications are blocked\n", res.Suppressed)
		}
		for _, id := range res.Dropped {
			fmt.Fprintf(out, "  dropped orphan nag %s\n", id)
		}
		return nil
	},
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Close the previous day: streaks, escalation and challenges",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		res, err := a.Engine().Rollover(cmd.Context())
		if err != nil {
			return fmt.Errorf("rollover failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if !res.Rolled {
			fmt.Fprintf(out, "Already on %s.\n", res.Day)
			return nil
		}
		fmt.Fprintf(out, "Rolled over to %s.\n", res.Day)
		for _, c := range res.Changes {
			fmt.Fprintf(out, "  %-20s level %d -> %d\n", c.Scope, c.From, c.To)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(rolloverCmd)
}
