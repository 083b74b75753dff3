package nag

import (
	"github.com/spf13/cobra"
)

// Cmd is the nag command group
var Cmd = &cobra.Command{
	Use:   "nag",
	Short: "Manage recurring reminders",
	Long:  `Schedule, cancel and list the recurring reminders of open tasks.`,
}

func init() {
	Cmd.AddCommand(scheduleCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(listCmd)
}
