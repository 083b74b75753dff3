package domain

import (
	"time"
)

// RedemptionStatus is the state of a redemption request.
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionApproved  RedemptionStatus = "approved"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	RedemptionDenied    RedemptionStatus = "denied"
)

// IsTerminal reports whether the request can no longer change.
func (s RedemptionStatus) IsTerminal() bool {
	return s == RedemptionFulfilled || s == RedemptionDenied
}

// Redemption is a request to spend points on a reward. Its points were
// debited when it was created.
type Redemption struct {
	ID          string           `json:"id"`
	RewardID    string           `json:"reward_id"`
	Points      int64            `json:"points"`
	Status      RedemptionStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty"`
	Refunded    bool             `json:"refunded,omitempty"`
}

var redemptionTransitions = map[RedemptionStatus][]RedemptionStatus{
	RedemptionPending:  {RedemptionApproved, RedemptionDenied},
	RedemptionApproved: {RedemptionFulfilled, RedemptionDenied},
}

func (r *Redemption) canMoveTo(to RedemptionStatus) bool {
	for _, allowed := range redemptionTransitions[r.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}
