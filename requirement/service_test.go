package requirement_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidwon/lifetree-app-api/apperr"
	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/memstore"
	"github.com/kidwon/lifetree-app-api/requirement"
)

func newService(t *testing.T) (*requirement.Service, *memstore.DB) {
	t.Helper()
	d := memstore.New()
	n := 0
	clock := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc := requirement.NewService(d, memstore.RequirementStore{}, memstore.ApplicationStore{}).
		WithEvents(memstore.OutboxStore{}).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("req-%d", n) }).
		WithClock(func() time.Time { clock = clock.Add(time.Minute); return clock })
	return svc, d
}

func str(s string) *string { return &s }

func topics(t *testing.T, d *memstore.DB) []string {
	t.Helper()
	msgs, err := d.Messages(context.Background())
	require.NoError(t, err)
	out := []string{}
	for _, m := range msgs {
		out = append(out, m.Topic)
	}
	return out
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t)

	view, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "  Fix roof  "})
	require.NoError(t, err)
	assert.Equal(t, "req-1", view.ID)
	assert.Equal(t, "Fix roof", view.Title)
	assert.Equal(t, requirement.StatusCreated, view.Status)
	assert.Equal(t, requirement.DefaultButtonText, view.AgreementButtonText)
	assert.Equal(t, []string{requirement.TopicCreated}, topics(t, d))

	_, err = svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "   "})
	assert.ErrorIs(t, err, requirement.ErrBlankTitle)
	_, err = svc.Create(ctx, requirement.CreateParams{Title: "Orphan"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "Long", AgreementButtonText: str("This label is far too long")})
	assert.ErrorIs(t, err, requirement.ErrInvalidButtonText)
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: fmt.Sprintf("Job %d", i)})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u2", Title: "Other"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, "Job 1", got.Title)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, requirement.ErrNotFound)

	page, err := svc.List(ctx, requirement.Filters{CreatedBy: "u1", PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Job 2", page.Items[0].Title, "newest first")

	_, err = svc.List(ctx, requirement.Filters{Status: "BOGUS"})
	assert.ErrorIs(t, err, requirement.ErrInvalidStatus)

	mine, err := svc.ListByCreator(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Other", mine[0].Title)
}

func TestUpdateOwnerOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "Fix roof"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "u2", "req-1", requirement.UpdateParams{Title: str("Mine now")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	view, err := svc.Update(ctx, "u1", "req-1", requirement.UpdateParams{Title: str("Fix roof and gutter"), Description: str("Before winter")})
	require.NoError(t, err)
	assert.Equal(t, "Fix roof and gutter", view.Title)
	assert.Equal(t, "Before winter", view.Description)
}

func TestUpdateIgnoresUnusableStatus(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t)
	_, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "Fix roof"})
	require.NoError(t, err)

	for _, raw := range []string{"whatever", "confirming"} {
		view, err := svc.Update(ctx, "u1", "req-1", requirement.UpdateParams{Title: str("Edited " + raw), Status: str(raw)})
		require.NoError(t, err)
		assert.Equal(t, requirement.StatusCreated, view.Status)
		assert.Equal(t, "Edited "+raw, view.Title)
	}

	view, err := svc.Update(ctx, "u1", "req-1", requirement.UpdateParams{Status: str("in_progress")})
	require.NoError(t, err)
	assert.Equal(t, requirement.StatusInProgress, view.Status)
	assert.Equal(t, []string{
		requirement.TopicCreated,
		requirement.TopicUpdated,
		requirement.TopicUpdated,
		requirement.TopicStatusChanged,
	}, topics(t, d))
}

func TestUpdateAgreement(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "Fix roof"})
	require.NoError(t, err)

	view, err := svc.UpdateAgreement(ctx, "u1", "req-1", requirement.AgreementParams{Agreement: str("Bring a ladder"), ButtonText: str("Deal")})
	require.NoError(t, err)
	require.NotNil(t, view.Agreement)
	assert.Equal(t, "Bring a ladder", *view.Agreement)
	assert.Equal(t, "Deal", view.AgreementButtonText)

	view, err = svc.UpdateAgreement(ctx, "u1", "req-1", requirement.AgreementParams{})
	require.NoError(t, err)
	assert.Nil(t, view.Agreement)
	assert.Equal(t, requirement.DefaultButtonText, view.AgreementButtonText)

	_, err = svc.UpdateAgreement(ctx, "u1", "req-1", requirement.AgreementParams{ButtonText: str("   ")})
	assert.ErrorIs(t, err, requirement.ErrInvalidButtonText)
}

func TestCompleteAndCancel(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "Fix roof"})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, "u1", "req-1")
	assert.ErrorIs(t, err, requirement.ErrInvalidTransition, "only in-progress work completes")

	_, err = svc.Update(ctx, "u1", "req-1", requirement.UpdateParams{Status: str("IN_PROGRESS")})
	require.NoError(t, err)
	view, err := svc.Complete(ctx, "u1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, requirement.StatusCompleted, view.Status)

	_, err = svc.Cancel(ctx, "u1", "req-1")
	assert.ErrorIs(t, err, requirement.ErrInvalidTransition)

	_, err = svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "Paint fence"})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "u2", "req-2")
	assert.ErrorIs(t, err, requirement.ErrNotOwner)
	view, err = svc.Cancel(ctx, "u1", "req-2")
	require.NoError(t, err)
	assert.Equal(t, requirement.StatusCancelled, view.Status)
}

func TestDeleteRefusesWhileApplicationsActive(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t)
	_, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "Fix roof"})
	require.NoError(t, err)

	app := application.New("app-1", "req-1", "u2", time.Now())
	tx, err := d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, memstore.ApplicationStore{}.Save(ctx, tx, app))
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, svc.Delete(ctx, "u2", "req-1"), apperr.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, "u1", "req-1"), requirement.ErrHasActiveApplications)

	require.NoError(t, app.Reject(time.Now()))
	tx, err = d.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, memstore.ApplicationStore{}.Save(ctx, tx, app))
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, svc.Delete(ctx, "u1", "req-1"))
	_, err = svc.Get(ctx, "req-1")
	assert.ErrorIs(t, err, requirement.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "u1", "req-1"), requirement.ErrNotFound)
}

func TestFailedEnqueueRollsBackCreate(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t)
	d.FailNext("outbox.enqueue", fmt.Errorf("disk full"))

	_, err := svc.Create(ctx, requirement.CreateParams{CreatorID: "u1", Title: "Fix roof"})
	require.ErrorContains(t, err, "disk full")

	_, err = svc.Get(ctx, "req-1")
	assert.ErrorIs(t, err, requirement.ErrNotFound)
	assert.Empty(t, topics(t, d))
}
