package domain

import (
	"fmt"
	"strconv"
	"strings"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// ChallengeTemplate describes a challenge generated every day.
type ChallengeTemplate struct {
	Key         string                `json:"key"`
	Title       string                `json:"title"`
	Target      int                   `json:"target"`
	BonusPoints int64                 `json:"bonus_points"`
	MinPriority sharedDomain.Priority `json:"min_priority"`
}

// DefaultChallengeTemplates returns the standard daily set.
func DefaultChallengeTemplates() []ChallengeTemplate {
	return []ChallengeTemplate{
		{Key: "three-tasks", Title: "Finish three tasks", Target: 3, BonusPoints: 15, MinPriority: sharedDomain.PriorityLow},
		{Key: "one-high", Title: "Finish a high-priority task", Target: 1, BonusPoints: 10, MinPriority: sharedDomain.PriorityHigh},
	}
}

// ParseChallengeTemplates reads "key:target:bonus[:minPriority];...".
func ParseChallengeTemplates(s string) ([]ChallengeTemplate, error) {
	var out []ChallengeTemplate
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTemplate, item)
		}
		target, err := strconv.Atoi(parts[1])
		if err != nil || target <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTemplate, item)
		}
		bonus, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || bonus < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTemplate, item)
		}
		tpl := ChallengeTemplate{Key: parts[0], Title: parts[0], Target: target, BonusPoints: bonus, MinPriority: sharedDomain.PriorityLow}
		if len(parts) == 4 {
			p, err := sharedDomain.ParsePriority(parts[3])
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidTemplate, item)
			}
			tpl.MinPriority = p
		}
		out = append(out, tpl)
	}
	return out, nil
}

// Challenge is one of the day's goals with a one-time bonus.
type Challenge struct {
	ID          string                `json:"id"`
	Key         string                `json:"key"`
	Title       string                `json:"title"`
	Target      int                   `json:"target"`
	Progress    int                   `json:"progress"`
	BonusPoints int64                 `json:"bonus_points"`
	MinPriority sharedDomain.Priority `json:"min_priority"`
	Completed   bool                  `json:"completed"`
	Day         sharedDomain.Day      `json:"day"`
	// Counted holds the completion keys already applied, so a duplicated
	// completion event is not counted twice.
	Counted []string `json:"counted,omitempty"`
}

func (c *Challenge) counted(key string) bool {
	for _, k := range c.Counted {
		if k == key {
			return true
		}
	}
	return false
}

func (c *Challenge) qualifies(p sharedDomain.Priority) bool {
	return p.OrDefault() >= c.MinPriority.OrDefault()
}

// ChallengeSet is the day's challenges.
type ChallengeSet struct {
	Day        sharedDomain.Day `json:"day"`
	Challenges []Challenge      `json:"challenges"`
}
