package outbox

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/kidwon/lifetree-app-api/db"
)

// Publisher delivers one message downstream.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// Recorder receives per-batch delivery counts.
type Recorder interface {
	ObserveOutbox(delivered, failed int)
}

type Stats struct {
	Delivered int
	Failed    int
}

// Relay drains pending outbox messages in batches.
type Relay struct {
	pool        db.TxBeginner
	store       Store
	publisher   Publisher
	recorder    Recorder
	log         logrus.FieldLogger
	batchSize   int
	maxAttempts int
}

func NewRelay(pool db.TxBeginner, store Store, publisher Publisher) *Relay {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &Relay{
		pool:        pool,
		store:       store,
		publisher:   publisher,
		log:         discard,
		batchSize:   50,
		maxAttempts: 5,
	}
}

func (r *Relay) WithBatchSize(n int) *Relay {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

func (r *Relay) WithMaxAttempts(n int) *Relay {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

func (r *Relay) WithLogger(log logrus.FieldLogger) *Relay {
	r.log = log
	return r
}

func (r *Relay) WithRecorder(rec Recorder) *Relay {
	r.recorder = rec
	return r
}

// RunOnce claims one batch, publishes it and records the outcome of every
// message in the same transaction as the claim.
func (r *Relay) RunOnce(ctx context.Context) (Stats, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Stats{}, fmt.Errorf("outbox: begin relay tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msgs, err := r.store.ClaimPending(ctx, tx, r.batchSize)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, m := range msgs {
		if pubErr := r.publisher.Publish(ctx, m); pubErr != nil {
			r.log.WithFields(logrus.Fields{"outbox_id": m.ID, "topic": m.Topic, "attempts": m.Attempts + 1}).WithError(pubErr).Warn("outbox publish failed")
			if err := r.store.MarkFailed(ctx, tx, m.ID, pubErr.Error(), r.maxAttempts); err != nil {
				return Stats{}, err
			}
			stats.Failed++
			continue
		}
		if err := r.store.MarkDelivered(ctx, tx, m.ID); err != nil {
			return Stats{}, err
		}
		stats.Delivered++
	}

	if err := tx.Commit(ctx); err != nil {
		return Stats{}, fmt.Errorf("outbox: commit relay tx: %w", err)
	}
	if r.recorder != nil {
		r.recorder.ObserveOutbox(stats.Delivered, stats.Failed)
	}
	return stats, nil
}

// LogPublisher writes each message to the structured log. It stands in for a
// broker until one is configured.
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) Publish(_ context.Context, m Message) error {
	p.Log.WithFields(logrus.Fields{
		"outbox_id": m.ID,
		"topic":     m.Topic,
		"payload":   string(m.Payload),
	}).Info("outbox event")
	return nil
}
