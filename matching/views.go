package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kidwon/lifetree-app-api/apperr"
	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/db"
	"github.com/kidwon/lifetree-app-api/requirement"
)

// OwnerRow is one line of a creator's dashboard. A requirement with pending
// applications yields one row per pending application; otherwise it yields a
// single row with Application and Applicant unset.
type OwnerRow struct {
	Requirement     requirement.View
	Application     *application.View
	Applicant       *Identity
	PendingCount    int
	PendingApproval bool
}

// ApplicantRow is one of the caller's own applications with its requirement.
type ApplicantRow struct {
	Requirement requirement.View
	Application application.View
	Owner       Identity
}

// ListApplicationsForOwner returns the owner's dashboard: one row per pending
// application, and a single summary row for requirements with none pending.
func (e *Engine) ListApplicationsForOwner(ctx context.Context, ownerID string) (rows []OwnerRow, err error) {
	defer e.observe("list_for_owner", time.Now(), &err)
	if ownerID == "" {
		return nil, ErrMissingActor
	}

	type group struct {
		req     *requirement.Requirement
		pending []*application.Application
	}

	tx, err := e.pool.BeginTx(ctx, db.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("matching: begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)

	reqs, err := e.requirements.FindByCreator(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	groups := make([]group, 0, len(reqs))
	applicantIDs := []string{}
	for _, r := range reqs {
		apps, err := e.applications.FindByRequirementID(ctx, tx, r.ID())
		if err != nil {
			return nil, err
		}
		g := group{req: r}
		for _, a := range apps {
			if a.Status() == application.StatusPending {
				g.pending = append(g.pending, a)
				applicantIDs = append(applicantIDs, a.ApplicantID())
			}
		}
		groups = append(groups, g)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("matching: commit read tx: %w", err)
	}

	identities, err := e.resolveIdentities(ctx, applicantIDs)
	if err != nil {
		return nil, err
	}

	rows = make([]OwnerRow, 0, len(groups))
	for _, g := range groups {
		view := g.req.View()
		if len(g.pending) == 0 {
			rows = append(rows, OwnerRow{Requirement: view})
			continue
		}
		for _, a := range g.pending {
			av := a.View()
			who := identities[a.ApplicantID()]
			rows = append(rows, OwnerRow{
				Requirement:     view,
				Application:     &av,
				Applicant:       &who,
				PendingCount:    len(g.pending),
				PendingApproval: true,
			})
		}
	}
	return rows, nil
}

// ListApplicationsForApplicant returns every application the user filed,
// with the requirement and its owner.
func (e *Engine) ListApplicationsForApplicant(ctx context.Context, applicantID string) (rows []ApplicantRow, err error) {
	defer e.observe("list_for_applicant", time.Now(), &err)
	if applicantID == "" {
		return nil, ErrMissingActor
	}

	type pair struct {
		req *requirement.Requirement
		app *application.Application
	}

	tx, err := e.pool.BeginTx(ctx, db.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("matching: begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)

	apps, err := e.applications.FindByApplicantID(ctx, tx, applicantID)
	if err != nil {
		return nil, err
	}
	cache := map[string]*requirement.Requirement{}
	pairs := make([]pair, 0, len(apps))
	ownerIDs := []string{}
	for _, a := range apps {
		req, ok := cache[a.RequirementID()]
		if !ok {
			found, findErr := e.requirements.FindByID(ctx, tx, a.RequirementID())
			if errors.Is(findErr, requirement.ErrNotFound) {
				e.log.WithField("application_id", a.ID()).Warn("application references a missing requirement")
				continue
			}
			if findErr != nil {
				return nil, findErr
			}
			req = found
			cache[a.RequirementID()] = req
			ownerIDs = append(ownerIDs, req.CreatedBy())
		}
		pairs = append(pairs, pair{req: req, app: a})
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("matching: commit read tx: %w", err)
	}

	identities, err := e.resolveIdentities(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}

	rows = make([]ApplicantRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, ApplicantRow{
			Requirement: p.req.View(),
			Application: p.app.View(),
			Owner:       identities[p.req.CreatedBy()],
		})
	}
	return rows, nil
}

// resolveIdentities looks up each distinct id once, with bounded fan-out. A
// user that no longer exists is shown by id only.
func (e *Engine) resolveIdentities(ctx context.Context, ids []string) (map[string]Identity, error) {
	out := make(map[string]Identity, len(ids))
	if e.identities == nil {
		for _, id := range ids {
			out[id] = Identity{ID: id}
		}
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.lookupLimit)
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			who, err := e.identities.LookupIdentity(gctx, id)
			if err != nil {
				if !errors.Is(err, apperr.ErrNotFound) {
					return fmt.Errorf("matching: lookup identity %s: %w", id, err)
				}
				e.log.WithField("user_id", id).Warn("identity not found for view")
				who = Identity{ID: id}
			}
			if who.ID == "" {
				who.ID = id
			}
			mu.Lock()
			out[id] = who
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
