package observability

import (
	"context"
	"log/slog"
	"time"
)

// TimeOperation runs fn and records its duration, outcome and, at Debug,
// a log line. A nil metrics is allowed.
func TimeOperation(ctx context.Context, logger *slog.Logger, metrics Metrics, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if metrics != nil {
		tag := T(OperationKey, operation)
		metrics.Timing(MetricOperationDuration, elapsed, tag)
		metrics.Counter(MetricOperationTotal, 1, tag)
		if err != nil {
			metrics.Counter(MetricOperationErrors, 1, tag)
		}
	}

	if logger != nil {
		if err != nil {
			logger.WarnContext(ctx, "operation failed",
				OperationKey, operation,
				DurationKey, elapsed.Milliseconds(),
				ErrorKey, err,
			)
		} else {
			logger.DebugContext(ctx, "operation completed",
				OperationKey, operation,
				DurationKey, elapsed.Milliseconds(),
			)
		}
	}
	return err
}
