package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
)

var levelCmd = &cobra.Command{
	Use:   "level [scope]",
	Short: "Show the escalation level of a scope",
	Long: `Show the escalation level of the global scope or of one goal.

Examples:
  gadfly level
  gadfly level goal:3f1c...`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		scope := escalationDomain.GlobalScope
		if len(args) == 1 {
			if scope, err = escalationDomain.ParseScope(args[0]); err != nil {
				return err
			}
		}

		state, level, known := a.Engine().EscalationState(scope)
		out := cmd.OutOrStdout()
		if !known {
			return fmt.Errorf("unknown scope %s", scope)
		}
		fmt.Fprintf(out, "%s: level %d\n", scope, level)
		if Verbose() {
			fmt.Fprintf(out, "  idle days:        %d\n", state.IdleDays)
			fmt.Fprintf(out, "  last progress:    %s\n", state.LastProgressDay)
			fmt.Fprintf(out, "  completed today:  %d\n", state.Today.TasksCompleted)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(levelCmd)
}
