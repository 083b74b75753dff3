package domain

import "time"

// AggregateRoot is a consistency boundary. Changes record events that the
// engine drains into the outbox when it commits.
type AggregateRoot interface {
	ID() string
	DomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot carries identity, timestamps, a change counter and the
// pending events. Embed it by value.
type BaseAggregateRoot struct {
	id        string
	createdAt time.Time
	updatedAt time.Time
	version   int
	pending   []DomainEvent
}

// NewBaseAggregateRoot starts a fresh aggregate at version 0.
func NewBaseAggregateRoot(id string, now time.Time) BaseAggregateRoot {
	now = now.UTC()
	return BaseAggregateRoot{id: id, createdAt: now, updatedAt: now}
}

// RehydrateBaseAggregateRoot restores the bookkeeping of a stored
// aggregate. Restored aggregates have no pending events.
func RehydrateBaseAggregateRoot(id string, createdAt, updatedAt time.Time, version int) BaseAggregateRoot {
	return BaseAggregateRoot{id: id, createdAt: createdAt, updatedAt: updatedAt, version: version}
}

func (a *BaseAggregateRoot) ID() string           { return a.id }
func (a *BaseAggregateRoot) CreatedAt() time.Time { return a.createdAt }
func (a *BaseAggregateRoot) UpdatedAt() time.Time { return a.updatedAt }
func (a *BaseAggregateRoot) Version() int         { return a.version }

// SetVersion is for aggregates that persist their own state shape.
func (a *BaseAggregateRoot) SetVersion(version int) { a.version = version }

// Touch moves updatedAt forward.
func (a *BaseAggregateRoot) Touch(now time.Time) { a.updatedAt = now.UTC() }

// AddDomainEvent queues event for the next commit and counts the change.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
	a.version++
}

// DomainEvents returns the events queued since the last drain.
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent { return a.pending }

// ClearDomainEvents drops queued events; the version is kept.
func (a *BaseAggregateRoot) ClearDomainEvents() { a.pending = nil }

// DrainEvents collects the queued events of aggs in order and clears them.
// Nil aggregates are skipped.
func DrainEvents(aggs ...AggregateRoot) []DomainEvent {
	var events []DomainEvent
	for _, agg := range aggs {
		if agg == nil {
			continue
		}
		events = append(events, agg.DomainEvents()...)
		agg.ClearDomainEvents()
	}
	return events
}
