package matching

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/memstore"
	"github.com/kidwon/lifetree-app-api/requirement"
)

func TestOwnerViewOneRowPerPendingApplication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "busy", "u1", requirement.StatusCreated)
	f.seed(t, "quiet", "u1", requirement.StatusCreated)
	f.seed(t, "other", "u2", requirement.StatusCreated)

	_, err := f.engine.Apply(ctx, "busy", "u2")
	require.NoError(t, err)
	_, err = f.engine.Apply(ctx, "busy", "u3")
	require.NoError(t, err)
	_, err = f.engine.Apply(ctx, "busy", "ghost")
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, "busy", "u1", "app-3")
	require.NoError(t, err)

	rows, err := f.engine.ListApplicationsForOwner(ctx, "u1")
	require.NoError(t, err)

	var busy, quiet []OwnerRow
	for _, r := range rows {
		switch r.Requirement.ID {
		case "busy":
			busy = append(busy, r)
		case "quiet":
			quiet = append(quiet, r)
		default:
			t.Fatalf("row for requirement %s not owned by u1", r.Requirement.ID)
		}
	}

	require.Len(t, busy, 2, "rejected applications are not listed")
	for _, r := range busy {
		require.NotNil(t, r.Application)
		require.NotNil(t, r.Applicant)
		assert.Equal(t, application.StatusPending, r.Application.Status)
		assert.Equal(t, 2, r.PendingCount)
		assert.True(t, r.PendingApproval)
		assert.Equal(t, r.Application.ApplicantID, r.Applicant.ID)
		assert.NotEmpty(t, r.Applicant.Name)
	}

	require.Len(t, quiet, 1)
	assert.Nil(t, quiet[0].Application)
	assert.Nil(t, quiet[0].Applicant)
	assert.Zero(t, quiet[0].PendingCount)
	assert.False(t, quiet[0].PendingApproval)
}

func TestOwnerViewFallsBackForUnknownApplicant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "r1", "u1", requirement.StatusCreated)
	_, err := f.engine.Apply(ctx, "r1", "ghost")
	require.NoError(t, err)

	rows, err := f.engine.ListApplicationsForOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Applicant)
	assert.Equal(t, Identity{ID: "ghost"}, *rows[0].Applicant)
}

func TestOwnerViewPropagatesLookupFailure(t *testing.T) {
	ctx := context.Background()
	d := memstore.New()
	var ids atomic.Int64
	broken := IdentityFunc(func(ctx context.Context, id string) (Identity, error) {
		return Identity{}, errors.New("user service unavailable")
	})
	e := NewEngine(d, memstore.RequirementStore{}, memstore.ApplicationStore{}, broken).
		WithIDGenerator(func() string { ids.Add(1); return "app-x" })
	f := &fixture{db: d, engine: e}
	f.seed(t, "r1", "u1", requirement.StatusCreated)
	_, err := e.Apply(ctx, "r1", "u2")
	require.NoError(t, err)

	_, err = e.ListApplicationsForOwner(ctx, "u1")
	assert.ErrorContains(t, err, "user service unavailable")
}

func TestOwnerViewEmpty(t *testing.T) {
	f := newFixture(t)
	rows, err := f.engine.ListApplicationsForOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = f.engine.ListApplicationsForOwner(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestApplicantViewListsEveryApplication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "r1", "u1", requirement.StatusCreated)
	f.seed(t, "r2", "u3", requirement.StatusCreated)

	_, err := f.engine.Apply(ctx, "r1", "u2")
	require.NoError(t, err)
	_, err = f.engine.Apply(ctx, "r2", "u2")
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, "r1", "u1", "app-1")
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, "r2", "u3", "app-2")
	require.NoError(t, err)

	rows, err := f.engine.ListApplicationsForApplicant(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byReq := map[string]ApplicantRow{}
	for _, r := range rows {
		byReq[r.Requirement.ID] = r
	}
	assert.Equal(t, application.StatusApproved, byReq["r1"].Application.Status)
	assert.Equal(t, requirement.StatusInProgress, byReq["r1"].Requirement.Status)
	assert.Equal(t, "Una Owner", byReq["r1"].Owner.Name)
	assert.Equal(t, application.StatusRejected, byReq["r2"].Application.Status)
	assert.Equal(t, "u3@example.com", byReq["r2"].Owner.Email)

	rows, err = f.engine.ListApplicationsForApplicant(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
