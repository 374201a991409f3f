package proof

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	id "anchorid/pkg/domain"
	dErrors "anchorid/pkg/domain-errors"
	txcontext "anchorid/pkg/platform/tx"
	"anchorid/pkg/requestcontext"

	"github.com/lib/pq"
)

// PostgresStore persists proofs in the proofs table (see
// migrations/0001_schema.sql). The full wire form lives in the payload
// column; the typed columns exist for pruning and lookups.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const insertProof = `
INSERT INTO proofs (id, proof_type, subject_did, payload, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (s *PostgresStore) SaveProof(ctx context.Context, p ZKProof) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode proof: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, insertProof,
		p.ID.String(),
		string(p.ProofType),
		p.Metadata.SubjectDID,
		payload,
		p.ExpirationTime,
		requestcontext.Now(ctx),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return dErrors.New(dErrors.CodeConflict, "proof already stored")
	}
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

const selectProof = `SELECT payload FROM proofs WHERE id = $1`

func (s *PostgresStore) GetProof(ctx context.Context, proofID id.ProofID) (ZKProof, error) {
	var payload []byte
	err := s.execer(ctx).QueryRowContext(ctx, selectProof, proofID.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ZKProof{}, dErrors.New(dErrors.CodeNotFound, "proof not found")
	}
	if err != nil {
		return ZKProof{}, fmt.Errorf("select proof: %w", err)
	}
	var p ZKProof
	if err := json.Unmarshal(payload, &p); err != nil {
		return ZKProof{}, fmt.Errorf("decode proof: %w", err)
	}
	return p, nil
}

const deleteExpiredProofs = `DELETE FROM proofs WHERE expires_at < $1`

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.execer(ctx).ExecContext(ctx, deleteExpiredProofs, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired proofs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
