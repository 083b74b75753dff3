package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/app"
	"github.com/felixgeelhaar/gadfly/internal/engine"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/pkg/config"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

var t0 = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func setupTestApp(t *testing.T) (*App, *sharedDomain.ManualClock) {
	t.Helper()
	t.Setenv("GADFLY_ENV", "test")
	t.Setenv("GADFLY_STORE", config.StoreMemory)
	t.Setenv("GADFLY_TIMEZONE", "UTC")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("GADFLY_PHRASE_PLUGIN", "")
	t.Setenv("GADFLY_PHRASES_FILE", "")
	t.Setenv("GADFLY_NOTIFY_WEBHOOK", "")
	t.Setenv("GADFLY_CHALLENGES", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	clock := sharedDomain.NewManualClock(t0)
	logger := observability.NewLogger(observability.LogConfig{Level: observability.LogLevelError})
	c, err := app.NewContainer(context.Background(), cfg, logger, app.WithClock(clock))
	require.NoError(t, err)

	a := NewApp(c)
	SetApp(a)
	SetLogger(logger)
	t.Cleanup(func() {
		SetApp(nil)
		c.Close()
	})
	return a, clock
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		verbose = false
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_RequireApp(t *testing.T) {
	SetApp(nil)
	for _, args := range [][]string{{"tick"}, {"rollover"}, {"challenges"}, {"level"}, {"phrase", "nag"}, {"health"}} {
		_, err := run(t, args...)
		assert.ErrorIs(t, err, ErrNotInitialized, args[0])
	}
}

func TestTickCommand(t *testing.T) {
	a, clock := setupTestApp(t)

	out, err := run(t, "tick")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing due.")

	require.NoError(t, a.Engine().TaskCreated(context.Background(), engine.TaskSignal{
		ID:        "t-1",
		Title:     "Renew passport",
		Priority:  sharedDomain.PriorityHigh,
		CreatedAt: t0,
	}))
	clock.Advance(time.Hour)

	out, err = run(t, "tick")
	require.NoError(t, err)
	assert.Contains(t, out, "t-1")
	assert.NotContains(t, out, "Nothing due.")
}

func TestRolloverCommand(t *testing.T) {
	_, clock := setupTestApp(t)

	out, err := run(t, "rollover")
	require.NoError(t, err)
	assert.Contains(t, out, "Already on 2026-07-01.")

	clock.Advance(24 * time.Hour)
	out, err = run(t, "rollover")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-07-02")
}

func TestChallengesCommand(t *testing.T) {
	setupTestApp(t)

	out, err := run(t, "challenges")
	require.NoError(t, err)
	assert.Contains(t, out, "Challenges for 2026-07-01")
	assert.Contains(t, out, "Finish three tasks")
	assert.Contains(t, out, "0/3")
}

func TestLevelCommand(t *testing.T) {
	setupTestApp(t)

	out, err := run(t, "level")
	require.NoError(t, err)
	assert.Contains(t, out, "global: level 0")

	out, err = run(t, "level", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "idle days:")

	_, err = run(t, "level", "bogus")
	assert.Error(t, err)

	_, err = run(t, "level", "goal:missing")
	assert.Error(t, err)
}

func TestPhraseCommand(t *testing.T) {
	setupTestApp(t)

	out, err := run(t, "phrase", "nag")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = run(t, "phrase")
	assert.Error(t, err)
}

func TestHealthCommand(t *testing.T) {
	setupTestApp(t)

	out, err := run(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, string(observability.HealthStatusHealthy))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gadfly dev (")

	out, err = run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
	versionShort = false
}
