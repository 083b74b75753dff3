package cli

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gadfly/adapter/api"
	"github.com/felixgeelhaar/gadfly/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker: scheduled ticks, rollover, event delivery and the HTTP API",
	Long: `Run the long-lived worker until interrupted.

The worker ticks the nag schedule (GADFLY_TICK), rolls the day over at
local midnight (GADFLY_ROLLOVER), drains the outbox and serves the HTTP
API on GADFLY_HTTP_ADDR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}
		return Serve(cmd, a.Container)
	},
}

// Serve wires the HTTP API into a worker and blocks until the command's
// context is cancelled.
func Serve(cmd *cobra.Command, c *app.Container) error {
	handler := api.NewHandler(api.HandlerConfig{
		Engine:     c.Engine,
		TaskEvents: c.TaskEvents,
		Metrics:    c.Metrics,
		Logger:     c.Logger,
	})
	srvCfg := api.DefaultServerConfig()
	srvCfg.Addr = c.Config.HTTPAddr
	server := api.NewServer(srvCfg, handler, c.Health, c.Logger)

	w, err := app.NewWorker(c, server.Handler())
	if err != nil {
		return err
	}
	return w.Run(cmd.Context())
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
