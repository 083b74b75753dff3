package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var phraseCmd = &cobra.Command{
	Use:   "phrase <category>",
	Short: "Print a phrase from a category without repeating recent ones",
	Long: `Pick a phrase in the configured tone.

Categories are dotted and fall back to their parent, so "nag.high"
uses "nag" when the pack has no dedicated pool.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		msg, err := a.Engine().Speak(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(phraseCmd)
}
