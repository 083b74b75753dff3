package nag

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List active nags",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		eng := app.Engine()
		out := cmd.OutOrStdout()

		if eng.PermissionLost() {
			fmt.Fprintln(out, "Notifications are blocked; nags are held back.")
		}
		entries := eng.Nags()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No active nags.")
			return nil
		}
		for _, e := range entries {
			if !e.Active {
				continue
			}
			fmt.Fprintf(out, "  %-20s %-8s %-6s every %-8s next %s (%d sent)\n",
				e.TaskID, e.Tier, e.Priority, e.Interval,
				humanize.RelTime(e.NextFireAt, eng.Now(), "ago", "from now"), e.FireCount)
		}
		return nil
	},
}
