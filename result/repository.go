package result

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kidwon/lifetree-app-api/db"
)

type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	ListByCreator(ctx context.Context, userID string) ([]Record, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, id string) error
}

type PGRepository struct {
	pool Querier
}

func NewRepository(pool Querier) *PGRepository {
	return &PGRepository{pool: pool}
}

const columns = `id, title, description, status, related_requirement_id, created_by, created_at, updated_at`

func (r *PGRepository) Insert(ctx context.Context, rec Record) (Record, error) {
	const query = `
		INSERT INTO results (id, title, description, status, related_requirement_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + columns

	out, err := scan(r.pool.QueryRow(ctx, query,
		rec.ID, rec.Title, rec.Description, rec.Status, rec.RelatedRequirementID, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt))
	if err != nil {
		return Record{}, fmt.Errorf("result: create: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Record, error) {
	out, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM results WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("result: get: %w", err)
	}
	return out, nil
}

func (r *PGRepository) ListByCreator(ctx context.Context, userID string) ([]Record, error) {
	return r.list(ctx, `SELECT `+columns+` FROM results WHERE created_by = $1 ORDER BY created_at DESC`, userID)
}

func (r *PGRepository) ListByRequirement(ctx context.Context, requirementID string) ([]Record, error) {
	return r.list(ctx, `SELECT `+columns+` FROM results WHERE related_requirement_id = $1 ORDER BY created_at DESC`, requirementID)
}

func (r *PGRepository) Update(ctx context.Context, rec Record) (Record, error) {
	const query = `
		UPDATE results
		SET title = $2, description = $3, status = $4, updated_at = $5
		WHERE id = $1
		RETURNING ` + columns

	out, err := scan(r.pool.QueryRow(ctx, query, rec.ID, rec.Title, rec.Description, rec.Status, rec.UpdatedAt))
	if err != nil {
		if db.IsNotFound(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("result: update: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM results WHERE id = $1`, id)
	if err != nil {
		if db.IsInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("result: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) list(ctx context.Context, query string, arg string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		if db.IsInvalidText(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("result: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("result: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("result: iterate: %w", err)
	}
	return out, nil
}

func scan(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Status, &rec.RelatedRequirementID, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// MemoryRepository keeps records in process for the in-memory server mode.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: map[string]Record{}}
}

func (m *MemoryRepository) Insert(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryRepository) ListByCreator(_ context.Context, userID string) ([]Record, error) {
	return m.filter(func(r Record) bool { return r.CreatedBy == userID }), nil
}

func (m *MemoryRepository) ListByRequirement(_ context.Context, requirementID string) ([]Record, error) {
	return m.filter(func(r Record) bool {
		return r.RelatedRequirementID != nil && *r.RelatedRequirementID == requirementID
	}), nil
}

func (m *MemoryRepository) Update(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.records[rec.ID]
	if !ok {
		return Record{}, ErrNotFound
	}
	prev.Title, prev.Description, prev.Status, prev.UpdatedAt = rec.Title, rec.Description, rec.Status, rec.UpdatedAt
	m.records[rec.ID] = prev
	return prev, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryRepository) filter(keep func(Record) bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Record{}
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
