package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

const aggregateType = "Ledger"

const (
	RoutingKeyPointsCredited      = "rewards.points.credited"
	RoutingKeyRedemptionRequested = "rewards.redemption.requested"
	RoutingKeyRedemptionApproved  = "rewards.redemption.approved"
	RoutingKeyRedemptionFulfilled = "rewards.redemption.fulfilled"
	RoutingKeyRedemptionDenied    = "rewards.redemption.denied"
	RoutingKeyChallengeCompleted  = "rewards.challenge.completed"
)

// PointsCredited is consumed by the speech layer for celebratory playback.
type PointsCredited struct {
	sharedDomain.BaseEvent
	Amount      int64  `json:"amount"`
	Reason      Reason `json:"reason"`
	Ref         string `json:"ref,omitempty"`
	Celebration string `json:"celebration,omitempty"`
	Balance     int64  `json:"balance"`
	Lifetime    int64  `json:"lifetime"`
}

// RedemptionChanged reports a new redemption or a status change.
type RedemptionChanged struct {
	sharedDomain.BaseEvent
	RedemptionID string           `json:"redemption_id"`
	RewardID     string           `json:"reward_id"`
	Points       int64            `json:"points"`
	Status       RedemptionStatus `json:"status"`
	Refunded     int64            `json:"refunded,omitempty"`
	Balance      int64            `json:"balance"`
}

var redemptionKeys = map[RedemptionStatus]string{
	RedemptionPending:   RoutingKeyRedemptionRequested,
	RedemptionApproved:  RoutingKeyRedemptionApproved,
	RedemptionFulfilled: RoutingKeyRedemptionFulfilled,
	RedemptionDenied:    RoutingKeyRedemptionDenied,
}

func newRedemptionChanged(r *Redemption, refunded, balance int64, at time.Time) *RedemptionChanged {
	return &RedemptionChanged{
		BaseEvent:    sharedDomain.NewBaseEvent(r.ID, aggregateType, redemptionKeys[r.Status], at),
		RedemptionID: r.ID,
		RewardID:     r.RewardID,
		Points:       r.Points,
		Status:       r.Status,
		Refunded:     refunded,
		Balance:      balance,
	}
}

// ChallengeCompleted is emitted when a daily challenge reaches its target.
type ChallengeCompleted struct {
	sharedDomain.BaseEvent
	ChallengeID string           `json:"challenge_id"`
	Title       string           `json:"title"`
	BonusPoints int64            `json:"bonus_points"`
	Day         sharedDomain.Day `json:"day"`
}
