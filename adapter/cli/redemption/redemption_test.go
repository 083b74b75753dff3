package redemption

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
	internalApp "github.com/felixgeelhaar/gadfly/internal/app"
	"github.com/felixgeelhaar/gadfly/internal/engine"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/pkg/config"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

func setupTestApp(t *testing.T) *cli.App {
	t.Helper()
	t.Setenv("GADFLY_ENV", "test")
	t.Setenv("GADFLY_STORE", config.StoreMemory)
	t.Setenv("GADFLY_TIMEZONE", "UTC")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("GADFLY_PHRASE_PLUGIN", "")
	t.Setenv("GADFLY_PHRASES_FILE", "")
	t.Setenv("GADFLY_NOTIFY_WEBHOOK", "")
	t.Setenv("GADFLY_REWARDS", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	clock := sharedDomain.NewManualClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	logger := observability.NewLogger(observability.LogConfig{Level: observability.LogLevelError})
	c, err := internalApp.NewContainer(context.Background(), cfg, logger, internalApp.WithClock(clock))
	require.NoError(t, err)

	a := cli.NewApp(c)
	cli.SetApp(a)
	t.Cleanup(func() {
		cli.SetApp(nil)
		c.Close()
	})
	return a
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	Cmd.SetOut(&out)
	Cmd.SetErr(&out)
	Cmd.SetArgs(args)
	err := Cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requestBreak(t *testing.T, a *cli.App) rewardsDomain.Redemption {
	t.Helper()
	r, err := a.Engine().RequestRedemption(context.Background(), "break")
	require.NoError(t, err)
	return r
}

func TestRedemptionCommands(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()
	_, err := a.Engine().Credit(ctx, engine.CreditRequest{Amount: 100})
	require.NoError(t, err)

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No redemptions.")

	approved := requestBreak(t, a)
	out, err = run(t, "approve", approved.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Approved "+approved.ID)

	out, err = run(t, "fulfill", approved.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Fulfilled "+approved.ID)

	_, err = run(t, "deny", approved.ID)
	assert.ErrorIs(t, err, rewardsDomain.ErrInvalidTransition)

	denied := requestBreak(t, a)
	assert.Equal(t, int64(40), a.Engine().Ledger().Balance)
	out, err = run(t, "deny", denied.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Denied "+denied.ID)
	assert.Equal(t, int64(70), a.Engine().Ledger().Balance)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "fulfilled")
	assert.Contains(t, out, "denied")

	_, err = run(t, "approve", "missing")
	assert.ErrorIs(t, err, rewardsDomain.ErrRedemptionNotFound)
}
