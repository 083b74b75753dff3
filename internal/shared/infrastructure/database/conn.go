package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Row is a single result row; pgx.Row and *sql.Row both satisfy it.
type Row interface {
	Scan(dest ...any) error
}

// Rows iterates a result set.
type Rows interface {
	Row
	Next() bool
	Close() error
	Err() error
}

// Result reports what an Exec changed. Postgres has no LastInsertId, so
// only the affected row count is exposed.
type Result interface {
	RowsAffected() (int64, error)
}

// Executor runs statements against a connection or an open transaction.
// Record and outbox stores are written against it and never see the driver.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Transaction is an Executor that can be finished.
type Transaction interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection is a pooled handle to the engine's database.
type Connection interface {
	Executor
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
	Ping(ctx context.Context) error
	Driver() Driver
}

// IsNoRows reports whether err means a single-row query matched nothing,
// for either driver.
func IsNoRows(err error) bool {
	return err != nil && (errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows))
}

// ScanEach calls scan for every row of a Query result and closes the rows.
// A query error is returned as is.
func ScanEach(rows Rows, queryErr error, scan func(Row) error) error {
	if queryErr != nil {
		return queryErr
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// FromSQLResult adapts a database/sql result.
func FromSQLResult(r sql.Result) Result { return r }

// FromSQLRows adapts database/sql rows.
func FromSQLRows(r *sql.Rows) Rows { return r }
