package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

var (
	verbose bool
	logger  *slog.Logger
)

type startedAtKey struct{}

var rootCmd = &cobra.Command{
	Use:   "gadfly",
	Short: "Gadfly - adaptive reminders and accountability",
	Long: `Gadfly nags you about open tasks, escalates its tone when you stall,
and pays you points you can spend on rewards when you follow through.

Commands operate on the configured store (GADFLY_STORE, DATABASE_URL),
so a worker started with "gadfly serve" sees every change.`,
	SilenceUsage: true,
	// Every command gets its own correlation ID; the events it stages carry
	// it into the outbox and the logs.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ctx := observability.NewRequestContext(cmd.Context(), "")
		ctx = context.WithValue(ctx, startedAtKey{}, time.Now())
		cmd.SetContext(ctx)
		log().DebugContext(ctx, "command start", "command", cmd.CommandPath())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if a := GetApp(); a != nil {
			if err := a.Container.Flush(ctx); err != nil {
				return fmt.Errorf("failed to deliver events: %w", err)
			}
		}
		if started, ok := ctx.Value(startedAtKey{}).(time.Time); ok {
			log().DebugContext(ctx, "command end",
				"command", cmd.CommandPath(),
				observability.DurationKey, time.Since(started).Milliseconds(),
			)
		}
		return nil
	},
}

func log() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Execute runs the command line and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// AddCommand registers a command group such as nag.Cmd.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Root returns the root command.
func Root() *cobra.Command {
	return rootCmd
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Verbose reports whether --verbose was given.
func Verbose() bool {
	return verbose
}
