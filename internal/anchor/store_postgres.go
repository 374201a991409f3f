package anchor

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "anchorid/pkg/platform/tx"
)

// PostgresStore persists the anchor log in the anchors table (see
// migrations/0001_schema.sql). Rows are insert-only.
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

const insertAnchor = `
INSERT INTO anchors (content_hash, subject, operation, status, tx_hash, block_height, network, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (s *PostgresStore) AppendAnchor(ctx context.Context, record Record) error {
	var txHash, reason sql.NullString
	var height sql.NullInt64
	if record.Receipt.TxHash != "" {
		txHash = sql.NullString{String: record.Receipt.TxHash, Valid: true}
	}
	if record.Receipt.Reason != "" {
		reason = sql.NullString{String: record.Receipt.Reason, Valid: true}
	}
	if record.Receipt.BlockHeight > 0 {
		height = sql.NullInt64{Int64: record.Receipt.BlockHeight, Valid: true}
	}
	_, err := s.execer(ctx).ExecContext(ctx, insertAnchor,
		record.ContentHash,
		record.Subject,
		string(record.Operation),
		string(record.Receipt.Status),
		txHash,
		height,
		record.Receipt.Network,
		reason,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert anchor: %w", err)
	}
	return nil
}

const listAnchors = `
SELECT content_hash, subject, operation, status, tx_hash, block_height, network, reason, created_at
FROM anchors
WHERE subject = $1
ORDER BY created_at, id`

func (s *PostgresStore) ListAnchors(ctx context.Context, subject string) ([]Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, listAnchors, subject)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			record Record
			op     string
			status string
			txHash sql.NullString
			height sql.NullInt64
			reason sql.NullString
		)
		if err := rows.Scan(&record.ContentHash, &record.Subject, &op, &status, &txHash, &height, &record.Receipt.Network, &reason, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		record.Operation = Operation(op)
		record.Receipt.Status = ReceiptStatus(status)
		record.Receipt.TxHash = txHash.String
		record.Receipt.BlockHeight = height.Int64
		record.Receipt.Reason = reason.String
		out = append(out, record)
	}
	return out, rows.Err()
}
