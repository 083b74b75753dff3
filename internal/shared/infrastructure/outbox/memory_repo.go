package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepository keeps the outbox in process memory.
// Used with the memory record store, where there is no durable transaction to join.
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	messages []*Message
	now      func() time.Time
}

// NewMemoryRepository creates an empty in-memory outbox.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

func (r *MemoryRepository) Save(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.save(msg)
	return nil
}

func (r *MemoryRepository) save(msg *Message) {
	r.nextID++
	msg.ID = r.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	r.messages = append(r.messages, msg)
}

func (r *MemoryRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.save(msg)
	}
	return nil
}

func (r *MemoryRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var out []*Message
	for _, msg := range r.messages {
		if !msg.pending(now) {
			continue
		}
		copied := *msg
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) find(id int64) (*Message, error) {
	for _, msg := range r.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("outbox message %d not found", id)
}

func (r *MemoryRepository) MarkPublished(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.find(id)
	if err != nil {
		return err
	}
	now := r.now()
	msg.PublishedAt = &now
	return nil
}

func (r *MemoryRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.find(id)
	if err != nil {
		return err
	}
	msg.RetryCount++
	msg.LastError = &errMsg
	msg.NextRetryAt = &nextRetryAt
	return nil
}

func (r *MemoryRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.find(id)
	if err != nil {
		return err
	}
	now := r.now()
	msg.RetryCount++
	msg.DeadLetteredAt = &now
	msg.DeadLetterReason = &reason
	return nil
}

func (r *MemoryRepository) GetDead(ctx context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Message
	for i := len(r.messages) - 1; i >= 0; i-- {
		msg := r.messages[i]
		if msg.DeadLetteredAt == nil {
			continue
		}
		copied := *msg
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	kept := r.messages[:0]
	var deleted int64
	for _, msg := range r.messages {
		if msg.PublishedAt != nil && msg.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	r.messages = kept
	return deleted, nil
}
