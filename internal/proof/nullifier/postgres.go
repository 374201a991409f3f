package nullifier

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRegistry enforces consumption with the nullifiers primary key:
// INSERT ... ON CONFLICT DO NOTHING reports via the affected row count
// whether this call consumed the pair first. See migrations/0001_schema.sql.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

const consumeNullifier = `
INSERT INTO nullifiers (nullifier_hash, verifier_did, consumed_at, expires_at)
VALUES ($1, $2, now(), $3)
ON CONFLICT (nullifier_hash, verifier_did) DO NOTHING`

func (r *PostgresRegistry) Consume(ctx context.Context, nullifierHash, verifierDID string, expiresAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, consumeNullifier, nullifierHash, verifierDID, expiresAt)
	if err != nil {
		return false, fmt.Errorf("consume nullifier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume nullifier rows: %w", err)
	}
	return affected == 1, nil
}

const pruneNullifiers = `DELETE FROM nullifiers WHERE expires_at < $1`

func (r *PostgresRegistry) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, pruneNullifiers, now)
	if err != nil {
		return 0, fmt.Errorf("prune nullifiers: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
