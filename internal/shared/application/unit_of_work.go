// Package application holds the cross-cutting pieces the engine uses to
// turn one command into one atomic write.
package application

import (
	"context"
	"fmt"
)

// UnitOfWork scopes store and outbox writes to one transaction. Begin
// returns the context the writes must use.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFunc is the body of a unit of work.
type UnitOfWorkFunc func(ctx context.Context) error

// WithUnitOfWork runs fn inside uow. It commits when fn succeeds and
// rolls back when fn fails or panics. The rollback error is dropped: the
// caller only needs to know that nothing was written.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn UnitOfWorkFunc) (err error) {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = uow.Rollback(txCtx)
		if r := recover(); r != nil {
			err = fmt.Errorf("unit of work panicked: %v", r)
		}
	}()

	if err := fn(txCtx); err != nil {
		return err
	}
	committed = true
	return uow.Commit(txCtx)
}

// NoopUnitOfWork is used by stores without transactions (memory, redis).
// Writes inside it take effect one by one.
type NoopUnitOfWork struct{}

func (NoopUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (NoopUnitOfWork) Commit(context.Context) error                       { return nil }
func (NoopUnitOfWork) Rollback(context.Context) error                     { return nil }
