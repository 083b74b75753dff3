package domain

import (
	"errors"
	"strings"
	"time"
)

// BlockerReason is why the user says a task is stuck.
type BlockerReason string

const (
	BlockerDistraction   BlockerReason = "distraction"
	BlockerOverwhelm     BlockerReason = "overwhelm"
	BlockerUnclearHow    BlockerReason = "unclear_how"
	BlockerDontWant      BlockerReason = "dont_want"
	BlockerExternalBlock BlockerReason = "external_block"
)

var ErrInvalidBlockerReason = errors.New("invalid blocker reason")

// ParseBlockerReason accepts the canonical names and their dashed forms.
func ParseBlockerReason(s string) (BlockerReason, error) {
	r := BlockerReason(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !r.IsValid() {
		return "", ErrInvalidBlockerReason
	}
	return r, nil
}

// IsValid checks if the reason is known.
func (r BlockerReason) IsValid() bool {
	switch r {
	case BlockerDistraction, BlockerOverwhelm, BlockerUnclearHow, BlockerDontWant, BlockerExternalBlock:
		return true
	default:
		return false
	}
}

// SuppressesNags reports whether reminders are pointless while the blocker holds.
// Only a block outside the user's control qualifies.
func (r BlockerReason) SuppressesNags() bool {
	return r == BlockerExternalBlock
}

// Blocker is a user-supplied reason attached to a task until cleared.
type Blocker struct {
	Reason BlockerReason `json:"reason"`
	Note   string        `json:"note,omitempty"`
	SetAt  time.Time     `json:"set_at"`
}
