package domain

import "errors"

var (
	ErrInvalidAmount       = errors.New("points amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRedemptionNotFound  = errors.New("redemption not found")
	ErrInvalidTransition   = errors.New("invalid redemption transition")
	ErrUnknownReward       = errors.New("unknown reward")
	ErrInvalidReward       = errors.New("invalid reward definition")
	ErrInvalidTemplate     = errors.New("invalid challenge template")
)
