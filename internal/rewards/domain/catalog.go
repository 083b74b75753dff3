package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Reward is something the user can spend points on.
type Reward struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Cost  int64  `json:"cost"`
}

// Catalog is the configured set of rewards.
type Catalog struct {
	rewards map[string]Reward
}

// NewCatalog validates and indexes rewards by id.
func NewCatalog(rewards ...Reward) (*Catalog, error) {
	c := &Catalog{rewards: make(map[string]Reward, len(rewards))}
	for _, r := range rewards {
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" || r.Cost <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidReward, r.ID)
		}
		if r.Title == "" {
			r.Title = r.ID
		}
		c.rewards[r.ID] = r
	}
	return c, nil
}

// ParseCatalog reads "id:title:cost;id:title:cost".
func ParseCatalog(s string) (*Catalog, error) {
	var rewards []Reward
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidReward, item)
		}
		cost, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidReward, item, err)
		}
		rewards = append(rewards, Reward{
			ID:    strings.TrimSpace(parts[0]),
			Title: strings.TrimSpace(parts[1]),
			Cost:  cost,
		})
	}
	return NewCatalog(rewards...)
}

// Get returns the reward with id.
func (c *Catalog) Get(id string) (Reward, error) {
	r, ok := c.rewards[id]
	if !ok {
		return Reward{}, ErrUnknownReward
	}
	return r, nil
}

// Rewards lists rewards by ascending cost, then id.
func (c *Catalog) Rewards() []Reward {
	out := make([]Reward, 0, len(c.rewards))
	for _, r := range c.rewards {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].ID < out[j].ID
	})
	return out
}
