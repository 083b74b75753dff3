package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check store and broker health",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		overall := a.Container.Health.Overall(cmd.Context())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", overall.Status)
		for _, name := range slices.Sorted(maps.Keys(overall.Checks)) {
			check := overall.Checks[name]
			if check.Message != "" {
				fmt.Fprintf(out, "  %-10s %s (%s)\n", name, check.Status, check.Message)
			} else {
				fmt.Fprintf(out, "  %-10s %s\n", name, check.Status)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
