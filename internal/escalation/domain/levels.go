package domain

// DefaultThresholds bucket idle days into levels: 1-2 days is level 1,
// 3-6 level 2, 7-13 level 3, 14 or more level 4.
var DefaultThresholds = []int{1, 3, 7, 14}

// DefaultMomentumDiscount is how many completions in a day lower the level by one.
const DefaultMomentumDiscount = 3

// Policy turns idle days and today's velocity into a level.
type Policy struct {
	Thresholds       []int
	MomentumDiscount int
}

// DefaultPolicy returns the standard thresholds and discount.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds:       append([]int(nil), DefaultThresholds...),
		MomentumDiscount: DefaultMomentumDiscount,
	}
}

// MaxLevel is the highest level the policy can produce.
func (p Policy) MaxLevel() int { return len(p.Thresholds) }

// Level saturates at MaxLevel and never drops below zero.
func (p Policy) Level(idleDays, velocity int) int {
	level := 0
	for _, t := range p.Thresholds {
		if idleDays >= t {
			level++
		}
	}
	if p.MomentumDiscount > 0 && velocity >= p.MomentumDiscount && level > 0 {
		level--
	}
	return level
}
