package nag

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
	"github.com/felixgeelhaar/gadfly/internal/engine"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

var (
	interval time.Duration
	priority string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <task-id>",
	Short: "Start or replace the nag of a task",
	Long: `Schedule a recurring nag for a task.

Without --every the interval follows the task's priority and aging tier.

Examples:
  gadfly nag schedule t-42
  gadfly nag schedule t-42 --every 20m
  gadfly nag schedule t-42 --priority high`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		req := engine.NagRequest{TaskID: args[0], Interval: interval}
		if interval < 0 {
			return fmt.Errorf("--every must be positive")
		}
		if priority != "" {
			if req.Priority, err = sharedDomain.ParsePriority(priority); err != nil {
				return err
			}
		}

		eng := app.Engine()
		entry, err := eng.ScheduleNag(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to schedule nag: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Nagging %s every %s, next %s\n",
			entry.TaskID, entry.Interval, humanize.RelTime(entry.NextFireAt, eng.Now(), "ago", "from now"))
		return nil
	},
}

func init() {
	scheduleCmd.Flags().DurationVar(&interval, "every", 0, "fixed nag interval (e.g. 20m)")
	scheduleCmd.Flags().StringVarP(&priority, "priority", "p", "", "priority for tasks the engine has not seen (low, medium, high)")
}
