package outbox

import (
	"context"
	"time"
)

// Writer is the engine's side of the outbox: events from one commit are
// appended together, inside the commit's unit of work when there is one.
type Writer interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error
}

// Relay is the processor's side. GetUnpublished returns messages whose
// retry time has passed, oldest first.
type Relay interface {
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error
}

// Repository is a full outbox store.
type Repository interface {
	Writer
	Relay

	// GetDead lists dead-lettered messages, newest first.
	GetDead(ctx context.Context, limit int) ([]*Message, error)

	// DeleteOld purges published messages older than the given number of days.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}
