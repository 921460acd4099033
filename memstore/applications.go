package memstore

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/kidwon/lifetree-app-api/application"
)

// ApplicationStore implements application.Store, including the
// one-active-application rule the SQL schema enforces with a partial index.
type ApplicationStore struct{}

var _ application.Store = ApplicationStore{}

func (ApplicationStore) FindByID(ctx context.Context, tx pgx.Tx, id string) (*application.Application, error) {
	t, err := open(tx, false)
	if err != nil {
		return nil, err
	}
	snap, ok := t.applications.get(id)
	if !ok {
		return nil, application.ErrNotFound
	}
	return application.Reconstitute(snap), nil
}

func (s ApplicationStore) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*application.Application, error) {
	return s.FindByID(ctx, tx, id)
}

func (ApplicationStore) FindByRequirementID(ctx context.Context, tx pgx.Tx, requirementID string) ([]*application.Application, error) {
	t, err := open(tx, false)
	if err != nil {
		return nil, err
	}
	list := filterApplications(t, func(a application.Snapshot) bool { return a.RequirementID == requirementID })
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return reconstituteApplications(list), nil
}

func (ApplicationStore) FindByApplicantID(ctx context.Context, tx pgx.Tx, applicantID string) ([]*application.Application, error) {
	t, err := open(tx, false)
	if err != nil {
		return nil, err
	}
	list := filterApplications(t, func(a application.Snapshot) bool { return a.ApplicantID == applicantID })
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return reconstituteApplications(list), nil
}

func (ApplicationStore) FindActive(ctx context.Context, tx pgx.Tx, requirementID, applicantID string) (*application.Application, error) {
	t, err := open(tx, false)
	if err != nil {
		return nil, err
	}
	list := filterApplications(t, func(a application.Snapshot) bool {
		return a.RequirementID == requirementID && a.ApplicantID == applicantID && a.Status.Active()
	})
	if len(list) == 0 {
		return nil, application.ErrNotFound
	}
	return application.Reconstitute(list[0]), nil
}

func (ApplicationStore) CountActiveByRequirement(ctx context.Context, tx pgx.Tx, requirementID string) (int, error) {
	t, err := open(tx, false)
	if err != nil {
		return 0, err
	}
	return len(filterApplications(t, func(a application.Snapshot) bool {
		return a.RequirementID == requirementID && a.Status.Active()
	})), nil
}

func (ApplicationStore) Save(ctx context.Context, tx pgx.Tx, a *application.Application) error {
	t, err := open(tx, true)
	if err != nil {
		return err
	}
	if err := t.db.fault("applications.save"); err != nil {
		return err
	}
	snap := a.Snapshot()
	if prev, ok := t.applications.get(snap.ID); ok {
		snap.RequirementID = prev.RequirementID
		snap.ApplicantID = prev.ApplicantID
		snap.CreatedAt = prev.CreatedAt
	}
	if snap.Status.Active() {
		clash := filterApplications(t, func(o application.Snapshot) bool {
			return o.ID != snap.ID && o.RequirementID == snap.RequirementID && o.ApplicantID == snap.ApplicantID && o.Status.Active()
		})
		if len(clash) > 0 {
			return application.ErrDuplicateActive
		}
	}
	t.applications.put(snap.ID, snap)
	return nil
}

func (ApplicationStore) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	t, err := open(tx, true)
	if err != nil {
		return err
	}
	if _, ok := t.applications.get(id); !ok {
		return application.ErrNotFound
	}
	t.applications.del(id)
	return nil
}

func filterApplications(t *Tx, keep func(application.Snapshot) bool) []application.Snapshot {
	out := []application.Snapshot{}
	t.applications.each(func(a application.Snapshot) {
		if keep(a) {
			out = append(out, a)
		}
	})
	return out
}

func reconstituteApplications(list []application.Snapshot) []*application.Application {
	out := make([]*application.Application, 0, len(list))
	for _, s := range list {
		out = append(out, application.Reconstitute(s))
	}
	return out
}
