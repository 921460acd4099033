package memstore

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/requirement"
)

// RequirementStore implements requirement.Store.
type RequirementStore struct{}

var _ requirement.Store = RequirementStore{}

func (RequirementStore) FindByID(ctx context.Context, tx pgx.Tx, id string) (*requirement.Requirement, error) {
	t, err := open(tx, false)
	if err != nil {
		return nil, err
	}
	snap, ok := t.requirements.get(id)
	if !ok {
		return nil, requirement.ErrNotFound
	}
	return requirement.Reconstitute(snap), nil
}

// FindByIDForUpdate needs no extra locking: the transaction already holds the store.
func (s RequirementStore) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*requirement.Requirement, error) {
	return s.FindByID(ctx, tx, id)
}

func (RequirementStore) FindAll(ctx context.Context, tx pgx.Tx, filters requirement.Filters) ([]*requirement.Requirement, int, error) {
	t, err := open(tx, false)
	if err != nil {
		return nil, 0, err
	}
	filters = filters.Normalize()

	matched := []requirement.Snapshot{}
	t.requirements.each(func(s requirement.Snapshot) {
		if filters.CreatedBy != "" && s.CreatedBy != filters.CreatedBy {
			return
		}
		if filters.Status != "" && s.Status != filters.Status {
			return
		}
		matched = append(matched, s)
	})
	sortNewestFirst(matched)

	total := len(matched)
	start := (filters.Page - 1) * filters.PageSize
	if start > total {
		start = total
	}
	end := start + filters.PageSize
	if end > total {
		end = total
	}
	return reconstitute(matched[start:end]), total, nil
}

func (RequirementStore) FindByCreator(ctx context.Context, tx pgx.Tx, creatorID string) ([]*requirement.Requirement, error) {
	t, err := open(tx, false)
	if err != nil {
		return nil, err
	}
	matched := []requirement.Snapshot{}
	t.requirements.each(func(s requirement.Snapshot) {
		if s.CreatedBy == creatorID {
			matched = append(matched, s)
		}
	})
	sortNewestFirst(matched)
	return reconstitute(matched), nil
}

func (RequirementStore) Save(ctx context.Context, tx pgx.Tx, r *requirement.Requirement) error {
	t, err := open(tx, true)
	if err != nil {
		return err
	}
	if err := t.db.fault("requirements.save"); err != nil {
		return err
	}
	snap := r.Snapshot()
	if prev, ok := t.requirements.get(snap.ID); ok {
		snap.CreatedBy = prev.CreatedBy
		snap.CreatedAt = prev.CreatedAt
	}
	t.requirements.put(snap.ID, snap)
	return nil
}

// Delete cascades to the requirement's applications, as the SQL schema does.
func (RequirementStore) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	t, err := open(tx, true)
	if err != nil {
		return err
	}
	if _, ok := t.requirements.get(id); !ok {
		return requirement.ErrNotFound
	}
	t.requirements.del(id)

	doomed := []string{}
	t.applications.each(func(a application.Snapshot) {
		if a.RequirementID == id {
			doomed = append(doomed, a.ID)
		}
	})
	for _, appID := range doomed {
		t.applications.del(appID)
	}
	return nil
}

func sortNewestFirst(list []requirement.Snapshot) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func reconstitute(list []requirement.Snapshot) []*requirement.Requirement {
	out := make([]*requirement.Requirement, 0, len(list))
	for _, s := range list {
		out = append(out, requirement.Reconstitute(s))
	}
	return out
}
