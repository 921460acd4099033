package requirement

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kidwon/lifetree-app-api/db"
)

// Store persists requirements. Every call runs inside the caller's transaction.
type Store interface {
	FindByID(ctx context.Context, tx pgx.Tx, id string) (*Requirement, error)
	// FindByIDForUpdate also takes a row lock held until tx ends.
	FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Requirement, error)
	FindAll(ctx context.Context, tx pgx.Tx, filters Filters) ([]*Requirement, int, error)
	FindByCreator(ctx context.Context, tx pgx.Tx, creatorID string) ([]*Requirement, error)
	// Save inserts or updates by id. CreatedBy and CreatedAt never change on update.
	Save(ctx context.Context, tx pgx.Tx, r *Requirement) error
	Delete(ctx context.Context, tx pgx.Tx, id string) error
}

type PGStore struct{}

func NewPGStore() *PGStore {
	return &PGStore{}
}

const selectColumns = `id, title, description, status, agreement, agreement_button_text, created_by, created_at, updated_at`

func (s *PGStore) FindByID(ctx context.Context, tx pgx.Tx, id string) (*Requirement, error) {
	row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM requirements WHERE id = $1`, id)
	req, err := scanRequirement(row)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("requirement: find by id: %w", err)
	}
	return req, nil
}

func (s *PGStore) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Requirement, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requirements
		WHERE id = $1
		FOR UPDATE
	`
	req, err := scanRequirement(tx.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("requirement: lock for update: %w", err)
	}
	return req, nil
}

func (s *PGStore) FindAll(ctx context.Context, tx pgx.Tx, filters Filters) ([]*Requirement, int, error) {
	filters = filters.Normalize()

	where := []string{"1=1"}
	args := []any{}
	if filters.CreatedBy != "" {
		where = append(where, fmt.Sprintf("created_by=$%d", len(args)+1))
		args = append(args, filters.CreatedBy)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`SELECT %s FROM requirements%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, selectColumns, whereClause, limit, offset)

	list, err := collect(ctx, tx, query, args...)
	if err != nil {
		if db.IsInvalidText(err) {
			return []*Requirement{}, 0, nil
		}
		return nil, 0, fmt.Errorf("requirement: query list: %w", err)
	}

	var total int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM requirements"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("requirement: count list: %w", err)
	}
	return list, total, nil
}

func (s *PGStore) FindByCreator(ctx context.Context, tx pgx.Tx, creatorID string) ([]*Requirement, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requirements
		WHERE created_by = $1
		ORDER BY created_at DESC, id
	`
	list, err := collect(ctx, tx, query, creatorID)
	if err != nil {
		if db.IsInvalidText(err) {
			return []*Requirement{}, nil
		}
		return nil, fmt.Errorf("requirement: find by creator: %w", err)
	}
	return list, nil
}

func (s *PGStore) Save(ctx context.Context, tx pgx.Tx, r *Requirement) error {
	const query = `
		INSERT INTO requirements (id, title, description, status, agreement, agreement_button_text, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			agreement = EXCLUDED.agreement,
			agreement_button_text = EXCLUDED.agreement_button_text,
			updated_at = EXCLUDED.updated_at
	`
	snap := r.Snapshot()
	if _, err := tx.Exec(ctx, query,
		snap.ID,
		snap.Title,
		snap.Description,
		snap.Status,
		snap.Agreement,
		snap.AgreementButtonText,
		snap.CreatedBy,
		snap.CreatedAt,
		snap.UpdatedAt,
	); err != nil {
		return fmt.Errorf("requirement: save: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM requirements WHERE id = $1`, id)
	if err != nil {
		if db.IsInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("requirement: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]*Requirement, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*Requirement{}
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

func scanRequirement(row pgx.Row) (*Requirement, error) {
	var s Snapshot
	if err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Description,
		&s.Status,
		&s.Agreement,
		&s.AgreementButtonText,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return Reconstitute(s), nil
}
