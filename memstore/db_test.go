package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/db"
	"github.com/kidwon/lifetree-app-api/requirement"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRequirement(t *testing.T, id, owner string) *requirement.Requirement {
	t.Helper()
	r, err := requirement.New(id, requirement.Draft{Title: "Fix roof", CreatedBy: owner}, t0)
	require.NoError(t, err)
	return r
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	ctx := context.Background()
	d := New()
	reqs := RequirementStore{}

	tx, err := d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, reqs.Save(ctx, tx, newRequirement(t, "r1", "u1")))

	// Visible inside the transaction that wrote it.
	_, err = reqs.FindByID(ctx, tx, "r1")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), pgx.ErrTxClosed)

	tx, err = d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = reqs.FindByID(ctx, tx, "r1")
	assert.ErrorIs(t, err, requirement.ErrNotFound)
}

func TestCommitPublishesWrites(t *testing.T) {
	ctx := context.Background()
	d := New()
	reqs := RequirementStore{}

	tx, _ := d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, reqs.Save(ctx, tx, newRequirement(t, "r1", "u1")))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = d.BeginTx(ctx, db.ReadOnly)
	defer tx.Rollback(ctx)
	got, err := reqs.FindByCreator(ctx, tx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID())

	assert.Error(t, reqs.Save(ctx, tx, got[0]), "read-only tx must refuse writes")
}

func TestFailedCommitKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	d := New()
	d.FailNext("commit", errors.New("disk full"))

	tx, _ := d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, RequirementStore{}.Save(ctx, tx, newRequirement(t, "r1", "u1")))
	assert.EqualError(t, tx.Commit(ctx), "disk full")

	tx, _ = d.BeginTx(ctx, pgx.TxOptions{})
	defer tx.Rollback(ctx)
	_, err := RequirementStore{}.FindByID(ctx, tx, "r1")
	assert.ErrorIs(t, err, requirement.ErrNotFound)
}

func TestBeginWaitsForRunningTransaction(t *testing.T) {
	ctx := context.Background()
	d := New()
	tx, err := d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = d.BeginTx(waitCtx, pgx.TxOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Rollback(ctx))
	tx2, err := d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestApplicationStoreEnforcesSingleActiveSlot(t *testing.T) {
	ctx := context.Background()
	d := New()
	apps := ApplicationStore{}

	tx, _ := d.BeginTx(ctx, pgx.TxOptions{})
	defer tx.Rollback(ctx)

	first := application.New("a1", "r1", "u2", t0)
	require.NoError(t, apps.Save(ctx, tx, first))
	assert.ErrorIs(t, apps.Save(ctx, tx, application.New("a2", "r1", "u2", t0)), application.ErrDuplicateActive)

	require.NoError(t, first.Reject(t0.Add(time.Minute)))
	require.NoError(t, apps.Save(ctx, tx, first))
	require.NoError(t, apps.Save(ctx, tx, application.New("a3", "r1", "u2", t0.Add(2*time.Minute))))

	n, err := apps.CountActiveByRequirement(ctx, tx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := apps.FindActive(ctx, tx, "r1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "a3", active.ID())
}

func TestDeleteRequirementCascades(t *testing.T) {
	ctx := context.Background()
	d := New()

	tx, _ := d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, RequirementStore{}.Save(ctx, tx, newRequirement(t, "r1", "u1")))
	require.NoError(t, ApplicationStore{}.Save(ctx, tx, application.New("a1", "r1", "u2", t0)))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, RequirementStore{}.Delete(ctx, tx, "r1"))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = d.BeginTx(ctx, pgx.TxOptions{})
	defer tx.Rollback(ctx)
	_, err := ApplicationStore{}.FindByID(ctx, tx, "a1")
	assert.ErrorIs(t, err, application.ErrNotFound)
	assert.ErrorIs(t, RequirementStore{}.Delete(ctx, tx, "r1"), requirement.ErrNotFound)
}

func TestFindAllPaginates(t *testing.T) {
	ctx := context.Background()
	d := New()
	tx, _ := d.BeginTx(ctx, pgx.TxOptions{})
	defer tx.Rollback(ctx)

	for i, id := range []string{"r1", "r2", "r3"} {
		r, err := requirement.New(id, requirement.Draft{Title: "t", CreatedBy: "u1"}, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, RequirementStore{}.Save(ctx, tx, r))
	}

	page, total, err := RequirementStore{}.FindAll(ctx, tx, requirement.Filters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "r1", page[0].ID())
}
