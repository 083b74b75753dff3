package nag

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Stop nagging about a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		cancelled, err := app.Engine().CancelNag(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to cancel nag: %w", err)
		}
		if !cancelled {
			fmt.Fprintf(cmd.OutOrStdout(), "No active nag for %s\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled nag for %s\n", args[0])
		return nil
	},
}
