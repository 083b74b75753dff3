package recordstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/database"
)

// DefaultTable is the record table created by the migrations.
const DefaultTable = "records"

// SQLStore keeps records in a SQL table (SQLite or PostgreSQL).
// It joins the transaction in ctx, so records and outbox rows written in one
// unit of work commit together.
type SQLStore struct {
	conn  database.Connection
	table string

	get    string
	put    string
	delete string
	keys   string
	create string
}

// NewSQLStore creates a store on table; empty means DefaultTable.
func NewSQLStore(conn database.Connection, table string) *SQLStore {
	if table == "" {
		table = DefaultTable
	}
	d := conn.Driver()
	quoted := pq.QuoteIdentifier(table)
	return &SQLStore{
		conn:  conn,
		table: table,
		get:   d.Rebind(`SELECT value FROM ` + quoted + ` WHERE key = ?`),
		put: d.Rebind(`INSERT INTO ` + quoted + ` (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		delete: d.Rebind(`DELETE FROM ` + quoted + ` WHERE key = ?`),
		keys:   d.Rebind(`SELECT key FROM ` + quoted + ` WHERE substr(key, 1, ?) = ? ORDER BY key`),
		create: `CREATE TABLE IF NOT EXISTS ` + quoted + ` (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
	}
}

// EnsureTable creates the table when it is not the migrated default.
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, s.create); err != nil {
		return fmt.Errorf("failed to create record table %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, s.conn)
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.exec(ctx).QueryRow(ctx, s.get, key).Scan(&value)
	if database.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := s.exec(ctx).Exec(ctx, s.put, key, string(value), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.exec(ctx).Exec(ctx, s.delete, key); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

// Keys matches on a substring compare rather than LIKE so '_' and '%' in
// identifiers are literal.
func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	rows, err := s.exec(ctx).Query(ctx, s.keys, len(prefix), prefix)
	err = database.ScanEach(rows, err, func(row database.Row) error {
		var key string
		if err := row.Scan(&key); err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records %s: %w", prefix, err)
	}
	// Postgres may order by locale collation; callers expect byte order.
	sort.Strings(keys)
	return keys, nil
}
