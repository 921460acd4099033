package result

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidwon/lifetree-app-api/apperr"
)

func newTestService() *Service {
	known := map[string]bool{"req-1": true}
	check := RequirementCheckFunc(func(ctx context.Context, id string) error {
		if id == "boom" {
			return errors.New("db down")
		}
		if !known[id] {
			return apperr.NotFound("requirement: not found")
		}
		return nil
	})
	clock := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	return NewService(NewMemoryRepository(), check).WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
}

func ptr(s string) *string { return &s }

func TestCreateResult(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	rec, err := svc.Create(ctx, "u1", CreateParams{Title: " Roof fixed ", RelatedRequirementID: ptr("req-1")})
	require.NoError(t, err)
	assert.Equal(t, "Roof fixed", rec.Title)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.Equal(t, "u1", rec.CreatedBy)

	_, err = svc.Create(ctx, "u1", CreateParams{Title: "  "})
	assert.ErrorIs(t, err, ErrBlankTitle)
	_, err = svc.Create(ctx, "u1", CreateParams{Title: strings.Repeat("x", MaxTitleLength+1)})
	assert.ErrorIs(t, err, ErrInvalidTitle)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Create(ctx, "u1", CreateParams{Title: strings.Repeat("é", MaxTitleLength)})
	assert.NoError(t, err)
	_, err = svc.Create(ctx, "u1", CreateParams{Title: "Orphan", RelatedRequirementID: ptr("req-404")})
	assert.ErrorIs(t, err, ErrUnknownRequirement)
	_, err = svc.Create(ctx, "u1", CreateParams{Title: "Flaky", RelatedRequirementID: ptr("boom")})
	assert.ErrorContains(t, err, "db down")
	assert.Nil(t, apperr.KindOf(err))

	byReq, err := svc.ListByRequirement(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, byReq, 1)
}

func TestUpdateIsCreatorOnly(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	rec, err := svc.Create(ctx, "u1", CreateParams{Title: "Report"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "u1", rec.ID, UpdateParams{Title: ptr(strings.Repeat("x", 300))})
	assert.ErrorIs(t, err, ErrInvalidTitle)

	_, err = svc.Update(ctx, "u2", rec.ID, UpdateParams{Title: ptr("Hijack")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, "u2", rec.ID), ErrForbidden)

	updated, err := svc.Update(ctx, "u1", rec.ID, UpdateParams{Description: ptr("All done"), Status: ptr("sideways")})
	require.NoError(t, err)
	assert.Equal(t, "All done", updated.Description)
	assert.Equal(t, StatusDraft, updated.Status, "unknown status ignored")
	assert.True(t, updated.UpdatedAt.After(rec.UpdatedAt))

	updated, err = svc.Update(ctx, "u1", rec.ID, UpdateParams{Status: ptr("completed")})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
}

func TestChangeStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	rec, err := svc.Create(ctx, "u1", CreateParams{Title: "Report"})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, "u1", rec.ID, Status("LOST"))
	assert.ErrorIs(t, err, ErrBadStatus)

	archived, err := svc.ChangeStatus(ctx, "u1", rec.ID, StatusArchived)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)

	mine, err := svc.ListByCreator(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, svc.Delete(ctx, "u1", rec.ID))
	_, err = svc.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
