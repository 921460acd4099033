package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kidwon/lifetree-app-api/apperr"
	"github.com/kidwon/lifetree-app-api/db"
)

var (
	ErrCredentialNotFound  = apperr.NotFound("auth: credential not found")
	ErrDuplicateCredential = apperr.BusinessRule("auth: credential already registered")
	// ErrCounterRegression means the authenticator reported a counter that did
	// not move forward, which points to a cloned key.
	ErrCounterRegression = apperr.Unauthorized("auth: signature counter did not increase")
)

// Credential is a registered Ed25519 public key.
type Credential struct {
	ID           string
	UserID       string
	Name         string
	CredentialID string
	PublicKey    []byte
	Counter      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CredentialRepository interface {
	CreateCredential(ctx context.Context, c Credential) (Credential, error)
	GetByCredentialID(ctx context.Context, credentialID string) (Credential, error)
	ListByUser(ctx context.Context, userID string) ([]Credential, error)
	// AdvanceCounter stores counter only if it exceeds the stored value.
	AdvanceCounter(ctx context.Context, credentialID string, counter int64) error
}

type PGCredentialRepository struct {
	pool Querier
}

func NewCredentialRepository(pool Querier) *PGCredentialRepository {
	return &PGCredentialRepository{pool: pool}
}

const credentialColumns = `id, user_id, name, credential_id, public_key, counter, created_at, updated_at`

func (r *PGCredentialRepository) CreateCredential(ctx context.Context, c Credential) (Credential, error) {
	const insertSQL = `
		INSERT INTO webauthn_credentials (id, user_id, name, credential_id, public_key, counter)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + credentialColumns

	out, err := scanCredential(r.pool.QueryRow(ctx, insertSQL, c.ID, c.UserID, c.Name, c.CredentialID, c.PublicKey, c.Counter))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Credential{}, ErrDuplicateCredential
		}
		return Credential{}, fmt.Errorf("auth: create credential: %w", err)
	}
	return out, nil
}

func (r *PGCredentialRepository) GetByCredentialID(ctx context.Context, credentialID string) (Credential, error) {
	out, err := scanCredential(r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM webauthn_credentials WHERE credential_id = $1`, credentialID))
	if err != nil {
		if db.IsNotFound(err) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, fmt.Errorf("auth: get credential: %w", err)
	}
	return out, nil
}

func (r *PGCredentialRepository) ListByUser(ctx context.Context, userID string) ([]Credential, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+credentialColumns+` FROM webauthn_credentials WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: list credentials: %w", err)
	}
	defer rows.Close()

	out := []Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("auth: scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGCredentialRepository) AdvanceCounter(ctx context.Context, credentialID string, counter int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webauthn_credentials
		SET counter = $2, updated_at = now()
		WHERE credential_id = $1 AND counter < $2
	`, credentialID, counter)
	if err != nil {
		return fmt.Errorf("auth: advance counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCounterRegression
	}
	return nil
}

func scanCredential(row pgx.Row) (Credential, error) {
	var c Credential
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.CredentialID, &c.PublicKey, &c.Counter, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
