package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDead      = "dead"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	LastError *string
	CreatedAt time.Time
}

// Store is the transactional side of the outbox. Enqueue runs inside the
// business transaction; the claim/mark calls run inside the relay's own.
type Store interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error
	ClaimPending(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error)
	MarkDelivered(ctx context.Context, tx pgx.Tx, id string) error
	// MarkFailed records a failed attempt and moves the message to dead once
	// maxAttempts is reached.
	MarkFailed(ctx context.Context, tx pgx.Tx, id, reason string, maxAttempts int) error
}

type PGStore struct{}

func NewPGStore() *PGStore {
	return &PGStore{}
}

func (s *PGStore) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	return nil
}

// ClaimPending locks up to limit pending rows, skipping rows another relay holds.
func (s *PGStore) ClaimPending(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	const q = `
		SELECT id, topic, payload, status, attempts, last_error, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`
	rows, err := tx.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim pending: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.LastError, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate pending: %w", err)
	}
	return msgs, nil
}

func (s *PGStore) MarkDelivered(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx, `UPDATE outbox SET status = 'processed', attempts = attempts + 1, last_attempt = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("outbox: mark delivered: %w", err)
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, tx pgx.Tx, id, reason string, maxAttempts int) error {
	const q = `
		UPDATE outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    last_attempt = NOW(),
		    status = CASE WHEN attempts + 1 >= $3 THEN 'dead' ELSE 'pending' END
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, q, id, reason, maxAttempts); err != nil {
		return fmt.Errorf("outbox: mark failed: %w", err)
	}
	return nil
}
