package engine

import (
	"context"
	"time"

	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// LedgerView is the read model of the points ledger.
type LedgerView struct {
	Balance        int64                `json:"balance"`
	Lifetime       int64                `json:"lifetime"`
	Streak         rewardsDomain.Streak `json:"streak"`
	CompletedToday int                  `json:"completed_today"`
	Day            sharedDomain.Day     `json:"day"`
}

// CreditRequest is a manual or externally resolved credit.
type CreditRequest struct {
	Amount int64
	Reason rewardsDomain.Reason
	// Ref makes the credit idempotent: a repeated ref is not paid again.
	Ref string
}

// Credit adds already resolved points to the ledger.
func (e *Engine) Credit(ctx context.Context, req CreditRequest) (LedgerView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return LedgerView{}, err
	}
	if req.Amount <= 0 {
		return LedgerView{}, rewardsDomain.ErrInvalidAmount
	}
	if req.Reason == "" {
		req.Reason = rewardsDomain.ReasonManual
	}
	credit := rewardsDomain.Credit{Amount: req.Amount, Reason: req.Reason, Ref: req.Ref}

	var err error
	if req.Ref != "" {
		_, err = e.ledger.CreditOnce("manual:"+req.Ref, credit, e.today, now)
	} else {
		err = e.ledger.Credit(credit, now)
	}
	if err != nil {
		return LedgerView{}, err
	}

	cs := newChangeset()
	e.stageLedger(cs)
	if err := e.commit(ctx, cs); err != nil {
		return LedgerView{}, err
	}
	e.recordCredit(req.Amount, string(req.Reason))
	return e.ledgerView(), nil
}

// RequestRedemption debits a catalog reward's cost and opens a pending
// request in one step. It fails with ErrInsufficientBalance or
// ErrUnknownReward without changing anything.
func (e *Engine) RequestRedemption(ctx context.Context, rewardID string) (rewardsDomain.Redemption, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reward, err := e.cfg.Catalog.Get(rewardID)
	if err != nil {
		return rewardsDomain.Redemption{}, err
	}
	r, err := e.ledger.RequestRedemption(reward.ID, reward.Cost, e.clock.Now())
	if err != nil {
		return rewardsDomain.Redemption{}, err
	}

	cs := newChangeset()
	e.stageLedger(cs, r.ID)
	if err := e.commit(ctx, cs); err != nil {
		return rewardsDomain.Redemption{}, err
	}
	e.metrics.Counter(observability.MetricLedgerRedeemed, r.Points, observability.T("reward", r.RewardID))
	e.metrics.Gauge(observability.MetricLedgerBalance, float64(e.ledger.Balance()))
	return r, nil
}

// ApproveRedemption moves a pending request to approved.
func (e *Engine) ApproveRedemption(ctx context.Context, id string) (rewardsDomain.Redemption, error) {
	return e.transition(ctx, id, (*rewardsDomain.Ledger).Approve)
}

// FulfillRedemption completes an approved request.
func (e *Engine) FulfillRedemption(ctx context.Context, id string) (rewardsDomain.Redemption, error) {
	return e.transition(ctx, id, (*rewardsDomain.Ledger).Fulfill)
}

// DenyRedemption denies a pending or approved request and refunds it once.
func (e *Engine) DenyRedemption(ctx context.Context, id string) (rewardsDomain.Redemption, error) {
	return e.transition(ctx, id, (*rewardsDomain.Ledger).Deny)
}

func (e *Engine) transition(ctx context.Context, id string, move func(*rewardsDomain.Ledger, string, time.Time) (rewardsDomain.Redemption, error)) (rewardsDomain.Redemption, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := move(e.ledger, id, e.clock.Now())
	if err != nil {
		return rewardsDomain.Redemption{}, err
	}
	cs := newChangeset()
	e.stageLedger(cs, r.ID)
	if err := e.commit(ctx, cs); err != nil {
		return rewardsDomain.Redemption{}, err
	}
	return r, nil
}

// Ledger returns the ledger read model.
func (e *Engine) Ledger() LedgerView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledgerView()
}

func (e *Engine) ledgerView() LedgerView {
	return LedgerView{
		Balance:        e.ledger.Balance(),
		Lifetime:       e.ledger.Lifetime(),
		Streak:         e.ledger.Streak(),
		CompletedToday: e.ledger.CompletedOn(e.today),
		Day:            e.today,
	}
}

// Redemption returns one redemption request.
func (e *Engine) Redemption(id string) (rewardsDomain.Redemption, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.ledger.Redemption(id)
	if !ok {
		return rewardsDomain.Redemption{}, rewardsDomain.ErrRedemptionNotFound
	}
	return r, nil
}

// Redemptions returns every redemption request, newest first.
func (e *Engine) Redemptions() []rewardsDomain.Redemption {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Redemptions()
}

// Challenges returns today's challenge set.
func (e *Engine) Challenges() rewardsDomain.ChallengeSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Challenges()
}

// Rewards lists the configured reward catalog.
func (e *Engine) Rewards() []rewardsDomain.Reward {
	return e.cfg.Catalog.Rewards()
}
