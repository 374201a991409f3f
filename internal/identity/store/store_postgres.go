package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	credmodels "anchorid/internal/credential/models"
	"anchorid/internal/identity/models"
	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/sentinel"
	txcontext "anchorid/pkg/platform/tx"
)

// PostgresBackend persists records in PostgreSQL. Schema in
// migrations/0001_schema.sql: did_records carries a unique index on
// wallet_address, credential_records an index on subject_did.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (b *PostgresBackend) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return b.db
}

const upsertDIDRecord = `
INSERT INTO did_records (did, wallet_address, content_hash, encrypted_content, iv, salt, encryption_params, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (did) DO UPDATE SET
    content_hash = EXCLUDED.content_hash,
    encrypted_content = EXCLUDED.encrypted_content,
    iv = EXCLUDED.iv,
    salt = EXCLUDED.salt,
    encryption_params = EXCLUDED.encryption_params,
    updated_at = EXCLUDED.updated_at
WHERE did_records.wallet_address = EXCLUDED.wallet_address`

func (b *PostgresBackend) UpsertDIDRecord(ctx context.Context, record models.EncryptedRecord) error {
	params, err := json.Marshal(record.Payload.Params)
	if err != nil {
		return fmt.Errorf("marshal encryption params: %w", err)
	}
	result, err := b.execer(ctx).ExecContext(ctx, upsertDIDRecord,
		record.DID.String(),
		record.WalletAddress.String(),
		record.Payload.ContentHash,
		record.Payload.Ciphertext,
		record.Payload.Nonce,
		record.Payload.Salt,
		params,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("upsert did record: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("upsert did record: %w", err)
	}
	// Zero rows means the conflict target matched but the wallet guard did
	// not: the DID exists under a different wallet.
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("did owned by another wallet: %w", sentinel.ErrConflict)
	}
	return nil
}

const getDIDRecord = `
SELECT did, wallet_address, content_hash, encrypted_content, iv, salt, encryption_params, created_at, updated_at
FROM did_records WHERE did = $1`

func (b *PostgresBackend) GetDIDRecord(ctx context.Context, did id.DID) (models.EncryptedRecord, error) {
	row := b.execer(ctx).QueryRowContext(ctx, getDIDRecord, did.String())
	return scanDIDRecord(row)
}

const findDIDByWallet = `SELECT did FROM did_records WHERE wallet_address = $1`

func (b *PostgresBackend) FindDIDByWallet(ctx context.Context, address id.WalletAddress) (id.DID, error) {
	var did string
	err := b.execer(ctx).QueryRowContext(ctx, findDIDByWallet, address.String()).Scan(&did)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("find did by wallet: %w", err)
	}
	return id.DID(did), nil
}

const insertCredentialRecord = `
INSERT INTO credential_records (id, subject_did, credential_type, status, content_hash, encrypted_content, iv, salt, encryption_params, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (b *PostgresBackend) InsertCredentialRecord(ctx context.Context, record CredentialRecord) error {
	params, err := json.Marshal(record.Payload.Params)
	if err != nil {
		return fmt.Errorf("marshal encryption params: %w", err)
	}
	_, err = b.execer(ctx).ExecContext(ctx, insertCredentialRecord,
		record.ID.String(),
		record.SubjectDID.String(),
		string(record.Type),
		string(record.Status),
		record.Payload.ContentHash,
		record.Payload.Ciphertext,
		record.Payload.Nonce,
		record.Payload.Salt,
		params,
		record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert credential: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

const getCredentialRecordBase = `
SELECT id, subject_did, credential_type, status, content_hash, encrypted_content, iv, salt, encryption_params, created_at
FROM credential_records`

const getCredentialRecord = getCredentialRecordBase + ` WHERE id = $1`

func (b *PostgresBackend) GetCredentialRecord(ctx context.Context, credentialID id.CredentialID) (CredentialRecord, error) {
	row := b.execer(ctx).QueryRowContext(ctx, getCredentialRecord, credentialID.String())
	record, err := scanCredentialRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CredentialRecord{}, sentinel.ErrNotFound
		}
		return CredentialRecord{}, fmt.Errorf("get credential: %w", err)
	}
	return record, nil
}

const listCredentialRecords = getCredentialRecordBase + ` WHERE subject_did = $1 ORDER BY created_at`

func (b *PostgresBackend) ListCredentialRecords(ctx context.Context, subjectDID id.DID) ([]CredentialRecord, error) {
	rows, err := b.execer(ctx).QueryContext(ctx, listCredentialRecords, subjectDID.String())
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var records []CredentialRecord
	for rows.Next() {
		record, err := scanCredentialRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

const updateCredentialStatus = `UPDATE credential_records SET status = $2 WHERE id = $1`

func (b *PostgresBackend) UpdateCredentialStatus(ctx context.Context, credentialID id.CredentialID, status credmodels.Status) error {
	result, err := b.execer(ctx).ExecContext(ctx, updateCredentialStatus, credentialID.String(), string(status))
	if err != nil {
		return fmt.Errorf("update credential status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanDIDRecord(row *sql.Row) (models.EncryptedRecord, error) {
	var (
		record    models.EncryptedRecord
		did       string
		address   string
		rawParams []byte
	)
	err := row.Scan(&did, &address, &record.Payload.ContentHash, &record.Payload.Ciphertext,
		&record.Payload.Nonce, &record.Payload.Salt, &rawParams, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EncryptedRecord{}, sentinel.ErrNotFound
		}
		return models.EncryptedRecord{}, fmt.Errorf("scan did record: %w", err)
	}
	record.DID = id.DID(did)
	record.WalletAddress = id.WalletAddress(address)
	if err := json.Unmarshal(rawParams, &record.Payload.Params); err != nil {
		return models.EncryptedRecord{}, fmt.Errorf("decode encryption params: %w", err)
	}
	return record, nil
}

func scanCredentialRecord(scan func(dest ...any) error) (CredentialRecord, error) {
	var (
		record    CredentialRecord
		credID    string
		subject   string
		credType  string
		status    string
		rawParams []byte
	)
	err := scan(&credID, &subject, &credType, &status, &record.Payload.ContentHash,
		&record.Payload.Ciphertext, &record.Payload.Nonce, &record.Payload.Salt, &rawParams, &record.CreatedAt)
	if err != nil {
		return CredentialRecord{}, err
	}
	parsed, err := id.ParseCredentialID(credID)
	if err != nil {
		return CredentialRecord{}, fmt.Errorf("stored credential id invalid: %w", err)
	}
	record.ID = parsed
	record.SubjectDID = id.DID(subject)
	record.Type = credmodels.CredentialType(credType)
	record.Status = credmodels.Status(status)
	if err := json.Unmarshal(rawParams, &record.Payload.Params); err != nil {
		return CredentialRecord{}, fmt.Errorf("decode encryption params: %w", err)
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
