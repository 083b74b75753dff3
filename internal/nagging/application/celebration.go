package application

import (
	"context"
	"fmt"
	"log/slog"

	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
)

// Speaker picks a phrase for a category without repeating itself.
type Speaker interface {
	Speak(ctx context.Context, category string) (string, error)
}

// CelebrationConsumer turns point credits and finished challenges into
// celebratory notifications.
type CelebrationConsumer struct {
	notifier Notifier
	speaker  Speaker
	logger   *slog.Logger
}

func NewCelebrationConsumer(notifier Notifier, speaker Speaker, logger *slog.Logger) (*CelebrationConsumer, error) {
	if notifier == nil {
		return nil, ErrNoNotifier
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CelebrationConsumer{notifier: notifier, speaker: speaker, logger: logger}, nil
}

func (c *CelebrationConsumer) EventTypes() []string {
	return []string{rewardsDomain.RoutingKeyPointsCredited, rewardsDomain.RoutingKeyChallengeCompleted}
}

func (c *CelebrationConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var category, ref string
	switch event.RoutingKey {
	case rewardsDomain.RoutingKeyPointsCredited:
		var credited rewardsDomain.PointsCredited
		if err := event.Decode(&credited); err != nil {
			return fmt.Errorf("decode credit: %w", err)
		}
		category = CelebrationCategory(credited.Reason, credited.Celebration)
		ref = credited.Ref
	case rewardsDomain.RoutingKeyChallengeCompleted:
		var done rewardsDomain.ChallengeCompleted
		if err := event.Decode(&done); err != nil {
			return fmt.Errorf("decode challenge: %w", err)
		}
		category = "challenge"
		ref = done.ChallengeID
	default:
		return nil
	}
	if category == "" {
		return nil
	}

	msg, err := c.speaker.Speak(ctx, category)
	if err != nil {
		c.logger.DebugContext(ctx, "no phrase for celebration", "category", category, "error", err)
		return nil
	}
	if err := c.notifier.Notify(ctx, Notification{
		Kind:     KindCelebration,
		TaskID:   ref,
		Message:  msg,
		Category: category,
		At:       event.OccurredAt,
	}); err != nil {
		c.logger.WarnContext(ctx, "celebration not delivered", "category", category, "error", err)
	}
	return nil
}

// CelebrationCategory maps a credit to a phrase category. Challenge bonuses
// are celebrated by the challenge event instead, and manual credits are
// silent.
func CelebrationCategory(reason rewardsDomain.Reason, celebration string) string {
	switch reason {
	case rewardsDomain.ReasonStreakBonus:
		return "streak"
	case rewardsDomain.ReasonChallengeBonus, rewardsDomain.ReasonManual:
		return ""
	case rewardsDomain.ReasonGoalCompleted:
		return "celebrate.epic"
	}
	if celebration == "" {
		celebration = "standard"
	}
	return "celebrate." + celebration
}
