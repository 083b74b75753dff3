package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

const aggregateType = "AgingMonitor"

// RoutingKeyTierChanged is published when a task's tier increases.
const RoutingKeyTierChanged = "aging.task.tier_changed"

// TierChanged is emitted when a scan finds a task more urgent than before.
type TierChanged struct {
	sharedDomain.BaseEvent
	TaskID   string `json:"task_id"`
	From     Tier   `json:"from"`
	To       Tier   `json:"to"`
	HoursOld int    `json:"hours_old"`
}

func newTierChanged(m *TaskMirror, from Tier, hoursOld int, at time.Time) *TierChanged {
	return &TierChanged{
		BaseEvent: sharedDomain.NewBaseEvent(m.ID, aggregateType, RoutingKeyTierChanged, at),
		TaskID:    m.ID,
		From:      from,
		To:        m.Tier,
		HoursOld:  hoursOld,
	}
}
