package engine

import (
	"context"
	"fmt"
)

// Speak picks a phrase for category in the configured tone without
// repeating recent picks. It serves the celebration and permission
// messages of the notification layer.
func (e *Engine) Speak(ctx context.Context, category string) (string, error) {
	pool, err := e.phrases.Phrases(ctx, e.cfg.Tone, category)
	if err != nil {
		return "", fmt.Errorf("phrases for %s: %w", category, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	phrase, err := e.selector.Pick(pool, category, e.clock.Now())
	if err != nil {
		return "", err
	}
	cs := newChangeset()
	e.stageSpoken(cs)
	if err := e.commit(ctx, cs); err != nil {
		return "", err
	}
	return phrase, nil
}
