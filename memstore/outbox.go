package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kidwon/lifetree-app-api/outbox"
)

type queued struct {
	seq int64
	msg outbox.Message
}

// OutboxStore implements outbox.Store.
type OutboxStore struct{}

var _ outbox.Store = OutboxStore{}

func (OutboxStore) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error {
	t, err := open(tx, true)
	if err != nil {
		return err
	}
	if err := t.db.fault("outbox.enqueue"); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("memstore: marshal outbox payload: %w", err)
	}
	t.db.seq++
	id := uuid.NewString()
	t.outbox.put(id, queued{seq: t.db.seq, msg: outbox.Message{
		ID:        id,
		Topic:     topic,
		Payload:   body,
		Status:    outbox.StatusPending,
		CreatedAt: time.Now().UTC(),
	}})
	return nil
}

func (OutboxStore) ClaimPending(ctx context.Context, tx pgx.Tx, limit int) ([]outbox.Message, error) {
	t, err := open(tx, false)
	if err != nil {
		return nil, err
	}
	pending := []queued{}
	t.outbox.each(func(q queued) {
		if q.msg.Status == outbox.StatusPending {
			pending = append(pending, q)
		}
	})
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]outbox.Message, 0, len(pending))
	for _, q := range pending {
		out = append(out, q.msg)
	}
	return out, nil
}

func (OutboxStore) MarkDelivered(ctx context.Context, tx pgx.Tx, id string) error {
	return updateMessage(tx, id, func(m *outbox.Message) {
		m.Attempts++
		m.Status = outbox.StatusProcessed
	})
}

func (OutboxStore) MarkFailed(ctx context.Context, tx pgx.Tx, id, reason string, maxAttempts int) error {
	return updateMessage(tx, id, func(m *outbox.Message) {
		m.Attempts++
		m.LastError = &reason
		if m.Attempts >= maxAttempts {
			m.Status = outbox.StatusDead
		}
	})
}

// Messages returns every outbox message in enqueue order.
func (d *DB) Messages(ctx context.Context) ([]outbox.Message, error) {
	tx, err := d.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	all := []queued{}
	tx.(*Tx).outbox.each(func(q queued) { all = append(all, q) })
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]outbox.Message, 0, len(all))
	for _, q := range all {
		out = append(out, q.msg)
	}
	return out, nil
}

func updateMessage(tx pgx.Tx, id string, change func(*outbox.Message)) error {
	t, err := open(tx, true)
	if err != nil {
		return err
	}
	q, ok := t.outbox.get(id)
	if !ok {
		return fmt.Errorf("memstore: outbox message %s not found", id)
	}
	change(&q.msg)
	t.outbox.put(id, q)
	return nil
}
