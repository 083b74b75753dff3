package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// Worker drives the engine on a schedule: nag ticks, the local-midnight
// rollover and outbox cleanup run as cron jobs next to the outbox processor,
// the broker consumer and the HTTP surface.
type Worker struct {
	c       *Container
	cron    *cron.Cron
	handler http.Handler
	logger  *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewWorker registers the cron jobs. handler may be nil to skip HTTP.
func NewWorker(c *Container, handler http.Handler) (*Worker, error) {
	w := &Worker{
		c:       c,
		handler: handler,
		logger:  c.Logger.With("component", "worker"),
		ctx:     context.Background(),
	}

	w.cron = cron.New(
		cron.WithLocation(c.Engine.Config().Location),
		cron.WithLogger(cronLogger{w.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})),
	)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"tick", c.Config.TickSpec, w.tick},
		{"rollover", c.Config.RolloverSpec, w.rollover},
		{"outbox_cleanup", "@every " + c.Config.OutboxCleanupInterval.String(), w.cleanup},
	}
	for _, job := range jobs {
		if job.spec == "" || job.spec == "@every 0s" {
			continue
		}
		job := job
		if _, err := w.cron.AddFunc(job.spec, func() { w.runJob(job.name, job.run) }); err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", job.name, job.spec, err)
		}
	}

	c.Health.Register("outbox", func(context.Context) observability.HealthCheckResult {
		if !c.Config.OutboxProcessorEnabled {
			return observability.HealthCheckResult{Status: observability.HealthStatusHealthy, Message: "processor disabled"}
		}
		stats := c.OutboxProcessor.GetStats()
		if !stats.IsRunning {
			return observability.HealthCheckResult{Status: observability.HealthStatusDegraded, Message: "outbox processor stopped"}
		}
		return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
	})

	return w, nil
}

func (w *Worker) runCtx() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx
}

func (w *Worker) runJob(name string, run func(context.Context) error) {
	ctx := observability.NewRequestContext(w.runCtx(), "")
	if err := observability.TimeOperation(ctx, w.logger, w.c.Metrics, "worker."+name, func() error {
		return run(ctx)
	}); err != nil {
		w.logger.ErrorContext(ctx, "job failed", "job", name, "error", err)
	}
}

func (w *Worker) tick(ctx context.Context) error {
	res, err := w.c.Engine.Tick(ctx)
	if err != nil {
		return err
	}
	if len(res.Fires) > 0 || res.Suppressed > 0 {
		w.logger.DebugContext(ctx, "tick",
			"fired", len(res.Fires),
			"suppressed", res.Suppressed,
		)
	}
	return nil
}

func (w *Worker) rollover(ctx context.Context) error {
	_, err := w.c.Engine.Rollover(ctx)
	return err
}

func (w *Worker) cleanup(ctx context.Context) error {
	deleted, err := w.c.OutboxRepo.DeleteOld(ctx, w.c.Config.OutboxRetentionDays)
	if err != nil {
		return err
	}
	if deleted > 0 {
		w.logger.InfoContext(ctx, "outbox cleanup completed",
			"deleted", deleted,
			"retention_days", w.c.Config.OutboxRetentionDays,
		)
	}
	return nil
}

// Run blocks until ctx is done. The first tick runs immediately so a
// restarted worker does not wait a full interval.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	if w.c.Config.OutboxProcessorEnabled {
		if err := w.c.OutboxProcessor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start outbox processor: %w", err)
		}
		defer w.c.OutboxProcessor.Stop()
	} else {
		w.logger.Info("outbox processor disabled")
	}

	var wg sync.WaitGroup
	if consumer := w.c.EventConsumer; consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("event consumer stopped", "error", err)
			}
		}()
	}

	var srv *http.Server
	if w.handler != nil && w.c.Config.HTTPAddr != "" {
		srv = &http.Server{
			Addr:              w.c.Config.HTTPAddr,
			Handler:           w.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.logger.Info("http server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				w.logger.Error("http server error", "error", err)
			}
		}()
	}

	w.runJob("tick", w.tick)
	w.cron.Start()
	w.logger.Info("worker started", "tick", w.c.Config.TickSpec, "rollover", w.c.Config.RolloverSpec)

	<-ctx.Done()
	w.logger.Info("shutting down worker")

	<-w.cron.Stop().Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("http server shutdown error", "error", err)
		}
		cancel()
	}
	if w.c.EventConsumer != nil {
		_ = w.c.EventConsumer.Close()
	}
	wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
