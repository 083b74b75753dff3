package phrases

import (
	"context"
	"log/slog"
)

// Chain asks each provider in turn and returns the first non-empty pool.
// A plugin that crashes or knows nothing about a category does not leave
// the engine speechless as long as a catalog sits behind it.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain builds a chain; nil providers are skipped.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{logger: logger}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

func (c *Chain) Phrases(ctx context.Context, tone, category string) ([]string, error) {
	var lastErr error = ErrNoPhrases
	for _, p := range c.providers {
		pool, err := p.Phrases(ctx, tone, category)
		if err != nil {
			c.logger.DebugContext(ctx, "phrase provider failed",
				"tone", tone,
				"category", category,
				"error", err,
			)
			lastErr = err
			continue
		}
		if len(pool) > 0 {
			return pool, nil
		}
	}
	return nil, lastErr
}
