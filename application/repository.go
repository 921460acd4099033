package application

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kidwon/lifetree-app-api/db"
)

// Store persists applications. Every call runs inside the caller's transaction.
type Store interface {
	FindByID(ctx context.Context, tx pgx.Tx, id string) (*Application, error)
	FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Application, error)
	FindByRequirementID(ctx context.Context, tx pgx.Tx, requirementID string) ([]*Application, error)
	FindByApplicantID(ctx context.Context, tx pgx.Tx, applicantID string) ([]*Application, error)
	// FindActive returns the pending or approved application held by applicantID
	// on requirementID, or ErrNotFound.
	FindActive(ctx context.Context, tx pgx.Tx, requirementID, applicantID string) (*Application, error)
	CountActiveByRequirement(ctx context.Context, tx pgx.Tx, requirementID string) (int, error)
	// Save inserts or updates by id and reports ErrDuplicateActive when the
	// one-active-application constraint fires.
	Save(ctx context.Context, tx pgx.Tx, a *Application) error
	Delete(ctx context.Context, tx pgx.Tx, id string) error
}

type PGStore struct{}

func NewPGStore() *PGStore {
	return &PGStore{}
}

const selectColumns = `id, requirement_id, applicant_id, status, created_at, updated_at`

func (s *PGStore) FindByID(ctx context.Context, tx pgx.Tx, id string) (*Application, error) {
	app, err := scanApplication(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM requirement_applications WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("application: find by id: %w", err)
	}
	return app, nil
}

func (s *PGStore) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Application, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requirement_applications
		WHERE id = $1
		FOR UPDATE
	`
	app, err := scanApplication(tx.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("application: lock for update: %w", err)
	}
	return app, nil
}

func (s *PGStore) FindByRequirementID(ctx context.Context, tx pgx.Tx, requirementID string) ([]*Application, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requirement_applications
		WHERE requirement_id = $1
		ORDER BY created_at, id
	`
	list, err := collect(ctx, tx, query, requirementID)
	if err != nil {
		if db.IsInvalidText(err) {
			return []*Application{}, nil
		}
		return nil, fmt.Errorf("application: find by requirement: %w", err)
	}
	return list, nil
}

func (s *PGStore) FindByApplicantID(ctx context.Context, tx pgx.Tx, applicantID string) ([]*Application, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requirement_applications
		WHERE applicant_id = $1
		ORDER BY created_at DESC, id
	`
	list, err := collect(ctx, tx, query, applicantID)
	if err != nil {
		if db.IsInvalidText(err) {
			return []*Application{}, nil
		}
		return nil, fmt.Errorf("application: find by applicant: %w", err)
	}
	return list, nil
}

func (s *PGStore) FindActive(ctx context.Context, tx pgx.Tx, requirementID, applicantID string) (*Application, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requirement_applications
		WHERE requirement_id = $1 AND applicant_id = $2 AND status IN ('PENDING', 'APPROVED')
		LIMIT 1
	`
	app, err := scanApplication(tx.QueryRow(ctx, query, requirementID, applicantID))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("application: find active: %w", err)
	}
	return app, nil
}

func (s *PGStore) CountActiveByRequirement(ctx context.Context, tx pgx.Tx, requirementID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM requirement_applications WHERE requirement_id = $1 AND status IN ('PENDING', 'APPROVED')`, requirementID).Scan(&n)
	if err != nil {
		if db.IsInvalidText(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("application: count active: %w", err)
	}
	return n, nil
}

func (s *PGStore) Save(ctx context.Context, tx pgx.Tx, a *Application) error {
	const query = `
		INSERT INTO requirement_applications (id, requirement_id, applicant_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	snap := a.Snapshot()
	if _, err := tx.Exec(ctx, query, snap.ID, snap.RequirementID, snap.ApplicantID, snap.Status, snap.CreatedAt, snap.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateActive
		}
		return fmt.Errorf("application: save: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM requirement_applications WHERE id = $1`, id)
	if err != nil {
		if db.IsInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("application: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]*Application, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, app)
	}
	return list, rows.Err()
}

func scanApplication(row pgx.Row) (*Application, error) {
	var s Snapshot
	if err := row.Scan(&s.ID, &s.RequirementID, &s.ApplicantID, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return Reconstitute(s), nil
}
