package ledger

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
	internalApp "github.com/felixgeelhaar/gadfly/internal/app"
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
	t.Setenv("GADFLY_REWARDS", "nap:Power nap:20;trip:Weekend trip:5000")

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
	t.Cleanup(func() {
		creditReason = string(rewardsDomain.ReasonManual)
		creditRef = ""
	})
	err := Cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLedgerCommands(t *testing.T) {
	a := setupTestApp(t)

	out, err := run(t, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance:   0 pts")

	out, err = run(t, "credit", "1500", "--ref", "import-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance: 1,500 pts")

	// Same ref credits once.
	out, err = run(t, "credit", "1500", "--ref", "import-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance: 1,500 pts")

	out, err = run(t, "rewards")
	require.NoError(t, err)
	assert.Contains(t, out, "* nap")
	assert.Contains(t, out, "  trip")
	assert.Contains(t, out, "5,000 pts")

	out, err = run(t, "redeem", "nap")
	require.NoError(t, err)
	assert.Contains(t, out, "Requested nap for 20 pts")
	assert.Equal(t, int64(1480), a.Engine().Ledger().Balance)

	_, err = run(t, "redeem", "trip")
	assert.ErrorIs(t, err, rewardsDomain.ErrInsufficientBalance)

	_, err = run(t, "redeem", "yacht")
	assert.ErrorIs(t, err, rewardsDomain.ErrUnknownReward)
}

func TestCreditCommand_Validation(t *testing.T) {
	setupTestApp(t)

	_, err := run(t, "credit", "lots")
	assert.Error(t, err)

	_, err = run(t, "credit", "-5")
	assert.Error(t, err)

	_, err = run(t, "credit", "0")
	assert.ErrorIs(t, err, rewardsDomain.ErrInvalidAmount)
}
