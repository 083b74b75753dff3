package domain

import (
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// Reason says why points were credited.
type Reason string

const (
	ReasonTaskCompleted  Reason = "task_completed"
	ReasonGoalMilestone  Reason = "goal_milestone"
	ReasonGoalCompleted  Reason = "goal_completed"
	ReasonStreakBonus    Reason = "streak_bonus"
	ReasonChallengeBonus Reason = "challenge_bonus"
	ReasonManual         Reason = "manual"
)

// PointsTable maps task priority to the points a completion earns.
type PointsTable map[sharedDomain.Priority]int64

// DefaultPointsTable returns the standard awards.
func DefaultPointsTable() PointsTable {
	return PointsTable{
		sharedDomain.PriorityLow:    5,
		sharedDomain.PriorityMedium: 10,
		sharedDomain.PriorityHigh:   20,
	}
}

// Points resolves the award for p; unknown priorities earn the medium award.
func (t PointsTable) Points(p sharedDomain.Priority) int64 {
	if v, ok := t[p]; ok && v >= 0 {
		return v
	}
	return t[sharedDomain.PriorityMedium]
}
