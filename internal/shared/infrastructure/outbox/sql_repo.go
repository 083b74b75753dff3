package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/gadfly/internal/shared/application"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const selectColumns = `id, event_id, aggregate_type, aggregate_id, routing_key, payload,
	created_at, published_at, next_retry_at, retry_count, last_error, dead_lettered_at, dead_letter_reason`

type statements struct {
	insert        string
	unpublished   string
	markPublished string
	markFailed    string
	markDead      string
	dead          string
	deleteOld     string
}

func newStatements(d database.Driver) statements {
	return statements{
		insert: d.Rebind(`INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, routing_key, payload, created_at, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, 0) RETURNING id`),
		unpublished: d.Rebind(`SELECT ` + selectColumns + ` FROM outbox
			WHERE published_at IS NULL AND dead_lettered_at IS NULL
			AND (next_retry_at IS NULL OR next_retry_at <= ?)
			ORDER BY id LIMIT ?`),
		markPublished: d.Rebind(`UPDATE outbox SET published_at = ? WHERE id = ?`),
		markFailed: d.Rebind(`UPDATE outbox
			SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
			WHERE id = ?`),
		markDead: d.Rebind(`UPDATE outbox
			SET retry_count = retry_count + 1, dead_lettered_at = ?, dead_letter_reason = ?
			WHERE id = ?`),
		dead: d.Rebind(`SELECT ` + selectColumns + ` FROM outbox
			WHERE dead_lettered_at IS NOT NULL ORDER BY id DESC LIMIT ?`),
		deleteOld: d.Rebind(`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`),
	}
}

// SQLRepository implements Repository on a database.Connection (SQLite or PostgreSQL).
// Statements run inside the caller's transaction when ctx carries one, so
// outbox rows commit atomically with the state records that produced them.
// Timestamps are stored as Unix milliseconds to keep both drivers identical.
type SQLRepository struct {
	conn database.Connection
	stmt statements
	now  func() time.Time
}

// NewSQLRepository creates a SQL-backed outbox repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{
		conn: conn,
		stmt: newStatements(conn.Driver()),
		now:  time.Now,
	}
}

func (r *SQLRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	err := r.exec(ctx).QueryRow(ctx, r.stmt.insert,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID,
		msg.RoutingKey,
		string(msg.Payload),
		msg.CreatedAt.UnixMilli(),
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to save outbox message: %w", err)
	}
	return nil
}

// SaveBatch joins the transaction in ctx, or opens one of its own.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return application.WithUnitOfWork(ctx, database.NewUnitOfWork(r.conn), func(txCtx context.Context) error {
		for _, msg := range msgs {
			if err := r.Save(txCtx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.exec(ctx).Query(ctx, r.stmt.unpublished, r.now().UnixMilli(), limit)
	msgs, err := scanMessages(rows, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	return msgs, nil
}

func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx).Exec(ctx, r.stmt.markPublished, r.now().UnixMilli(), id)
	return err
}

func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx).Exec(ctx, r.stmt.markFailed, errMsg, nextRetryAt.UnixMilli(), id)
	return err
}

func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx).Exec(ctx, r.stmt.markDead, r.now().UnixMilli(), reason, id)
	return err
}

func (r *SQLRepository) GetDead(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.exec(ctx).Query(ctx, r.stmt.dead, limit)
	msgs, err := scanMessages(rows, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	return msgs, nil
}

func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	result, err := r.exec(ctx).Exec(ctx, r.stmt.deleteOld, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMessages(rows database.Rows, queryErr error) ([]*Message, error) {
	var out []*Message
	err := database.ScanEach(rows, queryErr, func(row database.Row) error {
		var (
			msg                            Message
			eventID, payload               string
			createdAt                      int64
			publishedAt, nextRetry, deadAt sql.NullInt64
			lastError, deadReason          sql.NullString
		)
		if err := row.Scan(
			&msg.ID, &eventID, &msg.AggregateType, &msg.AggregateID, &msg.RoutingKey, &payload,
			&createdAt, &publishedAt, &nextRetry, &msg.RetryCount, &lastError, &deadAt, &deadReason,
		); err != nil {
			return fmt.Errorf("failed to scan outbox row: %w", err)
		}
		parsed, err := uuid.Parse(eventID)
		if err != nil {
			return fmt.Errorf("invalid event id %q: %w", eventID, err)
		}
		msg.EventID = parsed
		msg.Payload = []byte(payload)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		msg.PublishedAt = millisPtr(publishedAt)
		msg.NextRetryAt = millisPtr(nextRetry)
		msg.DeadLetteredAt = millisPtr(deadAt)
		msg.LastError = stringPtr(lastError)
		msg.DeadLetterReason = stringPtr(deadReason)
		out = append(out, &msg)
		return nil
	})
	return out, err
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
