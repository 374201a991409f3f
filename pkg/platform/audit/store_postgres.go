package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	txcontext "anchorid/pkg/platform/tx"
)

// PostgresStore persists the outbox in the audit_outbox table (see
// migrations/0001_schema.sql). Appending inside a caller transaction via
// pkg/platform/tx makes the audit write atomic with the business write.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const appendEvent = `
INSERT INTO audit_outbox (id, category, subject, action, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, appendEvent,
		uuid.New(),
		string(event.Category),
		event.Subject,
		event.Action,
		payload,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

const listBySubject = `
SELECT payload FROM audit_outbox WHERE subject = $1 ORDER BY created_at`

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, listBySubject, subject)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows, nil)
}

const listUnpublished = `
SELECT id, payload FROM audit_outbox
WHERE published_at IS NULL
ORDER BY created_at
LIMIT $1`

func (s *PostgresStore) ListUnpublished(ctx context.Context, limit int) ([]StoredEvent, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, listUnpublished, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished audit events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			stored  StoredEvent
			payload []byte
		)
		if err := rows.Scan(&stored.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if err := json.Unmarshal(payload, &stored.Event); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}

const markPublished = `
UPDATE audit_outbox SET published_at = now() WHERE id = ANY($1)`

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.execer(ctx).ExecContext(ctx, markPublished, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark audit events published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows, out []Event) ([]Event, error) {
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
