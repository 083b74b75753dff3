// Package domain picks phrases so the user does not hear the same line twice in a row.
package domain

import (
	"errors"
	"math/rand/v2"
	"sort"
	"time"
)

var ErrEmptyPool = errors.New("phrase pool is empty")

const (
	// DefaultWindow roughly covers one session of reminders.
	DefaultWindow = 8
	// DefaultTTL expires spoken phrases after a quiet stretch.
	DefaultTTL = 12 * time.Hour
)

// Spoken is one remembered pick.
type Spoken struct {
	Phrase string    `json:"phrase"`
	At     time.Time `json:"at"`
}

// Selector remembers the last K picks per category.
// It is not safe for concurrent use; the engine serializes access.
type Selector struct {
	window int
	ttl    time.Duration
	intn   func(n int) int
	recent map[string][]Spoken
	dirty  map[string]bool
}

// Option configures a Selector.
type Option func(*Selector)

// WithRandom replaces the random source, e.g. for deterministic tests.
func WithRandom(intn func(n int) int) Option {
	return func(s *Selector) { s.intn = intn }
}

// NewSelector creates a selector. Non-positive window or ttl use the defaults.
func NewSelector(window int, ttl time.Duration, opts ...Option) *Selector {
	if window <= 0 {
		window = DefaultWindow
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Selector{
		window: window,
		ttl:    ttl,
		intn:   rand.IntN,
		recent: make(map[string][]Spoken),
		dirty:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pick chooses a phrase from pool for category, avoiding anything in the
// recent window. When every phrase is recent the window resets, but the
// last pick is still avoided so consecutive picks differ. A pool of one is
// returned as is and not tracked.
func (s *Selector) Pick(pool []string, category string, now time.Time) (string, error) {
	pool = dedupe(pool)
	switch len(pool) {
	case 0:
		return "", ErrEmptyPool
	case 1:
		return pool[0], nil
	}

	recent := s.expire(category, now)
	seen := make(map[string]bool, len(recent))
	for _, r := range recent {
		seen[r.Phrase] = true
	}

	candidates := make([]string, 0, len(pool))
	for _, p := range pool {
		if !seen[p] {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		last := ""
		if len(recent) > 0 {
			last = recent[len(recent)-1].Phrase
		}
		recent = nil
		for _, p := range pool {
			if p != last {
				candidates = append(candidates, p)
			}
		}
	}

	choice := candidates[s.intn(len(candidates))]
	recent = append(recent, Spoken{Phrase: choice, At: now.UTC()})
	if len(recent) > s.window {
		recent = recent[len(recent)-s.window:]
	}
	s.recent[category] = recent
	s.dirty[category] = true
	return choice, nil
}

func (s *Selector) expire(category string, now time.Time) []Spoken {
	recent := s.recent[category]
	cut := 0
	for cut < len(recent) && now.Sub(recent[cut].At) > s.ttl {
		cut++
	}
	if cut > 0 {
		recent = append([]Spoken(nil), recent[cut:]...)
		s.dirty[category] = true
	}
	return recent
}

func dedupe(pool []string) []string {
	out := make([]string, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, p := range pool {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Window returns a copy of the remembered picks for category, oldest first.
func (s *Selector) Window(category string) []Spoken {
	return append([]Spoken(nil), s.recent[category]...)
}

// Restore replaces the remembered picks for category, trimming to the window size.
func (s *Selector) Restore(category string, spoken []Spoken) {
	if len(spoken) > s.window {
		spoken = spoken[len(spoken)-s.window:]
	}
	s.recent[category] = append([]Spoken(nil), spoken...)
}

// Dirty returns the categories changed since the last call, sorted, and clears the set.
func (s *Selector) Dirty() []string {
	out := make([]string, 0, len(s.dirty))
	for c := range s.dirty {
		out = append(out, c)
	}
	sort.Strings(out)
	s.dirty = make(map[string]bool)
	return out
}
