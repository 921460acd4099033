// Package memstore is an in-process implementation of the requirement,
// application and outbox stores. Transactions run one at a time, so every
// transaction is serializable; writes are staged and only become visible on
// Commit.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/requirement"
)

var (
	errUnsupported = errors.New("memstore: raw SQL is not supported")
	errForeignTx   = errors.New("memstore: transaction was not started by memstore")
	errReadOnly    = errors.New("memstore: write in read-only transaction")
)

// DB owns the committed state.
type DB struct {
	sem chan struct{}

	requirements map[string]requirement.Snapshot
	applications map[string]application.Snapshot
	outbox       map[string]queued
	seq          int64

	faultMu sync.Mutex
	faults  map[string]error
}

func New() *DB {
	return &DB{
		sem:          make(chan struct{}, 1),
		requirements: map[string]requirement.Snapshot{},
		applications: map[string]application.Snapshot{},
		outbox:       map[string]queued{},
		faults:       map[string]error{},
	}
}

// BeginTx waits for the running transaction, if any, to finish.
func (d *DB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Tx{
		db:           d,
		readOnly:     opts.AccessMode == pgx.ReadOnly,
		requirements: newOverlay(d.requirements),
		applications: newOverlay(d.applications),
		outbox:       newOverlay(d.outbox),
	}, nil
}

// FailNext makes the next call to op return err. Ops are "requirements.save",
// "applications.save", "outbox.enqueue" and "commit".
func (d *DB) FailNext(op string, err error) {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	d.faults[op] = err
}

func (d *DB) fault(op string) error {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	err := d.faults[op]
	delete(d.faults, op)
	return err
}

// Tx stages writes over the committed maps.
type Tx struct {
	db       *DB
	readOnly bool
	done     bool

	requirements *overlay[requirement.Snapshot]
	applications *overlay[application.Snapshot]
	outbox       *overlay[queued]
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	defer t.release()
	if err := t.db.fault("commit"); err != nil {
		return err
	}
	t.requirements.commit()
	t.applications.commit()
	t.outbox.commit()
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func (t *Tx) release() {
	t.done = true
	<-t.db.sem
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("memstore: nested transactions are not supported")
}

func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errUnsupported
}

func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("memstore: SendBatch is not supported")
}

func (t *Tx) LargeObjects() pgx.LargeObjects {
	panic("memstore: LargeObjects is not supported")
}

func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errUnsupported
}

func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errUnsupported
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errUnsupported
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{err: errUnsupported}
}

func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// open asserts tx belongs to memstore and is still usable.
func open(tx pgx.Tx, write bool) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, errForeignTx
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	if write && t.readOnly {
		return nil, errReadOnly
	}
	return t, nil
}

// overlay reads through staged changes to the committed map. A nil staged
// entry marks a delete.
type overlay[T any] struct {
	base    map[string]T
	changes map[string]*T
}

func newOverlay[T any](base map[string]T) *overlay[T] {
	return &overlay[T]{base: base, changes: map[string]*T{}}
}

func (o *overlay[T]) get(id string) (T, bool) {
	if v, ok := o.changes[id]; ok {
		if v == nil {
			var zero T
			return zero, false
		}
		return *v, true
	}
	v, ok := o.base[id]
	return v, ok
}

func (o *overlay[T]) put(id string, v T) {
	o.changes[id] = &v
}

func (o *overlay[T]) del(id string) {
	o.changes[id] = nil
}

func (o *overlay[T]) each(fn func(T)) {
	for _, v := range o.changes {
		if v != nil {
			fn(*v)
		}
	}
	for id, v := range o.base {
		if _, staged := o.changes[id]; !staged {
			fn(v)
		}
	}
}

func (o *overlay[T]) commit() {
	for id, v := range o.changes {
		if v == nil {
			delete(o.base, id)
			continue
		}
		o.base[id] = *v
	}
	o.changes = map[string]*T{}
}
