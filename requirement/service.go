package requirement

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/kidwon/lifetree-app-api/db"
)

// ApplicationCounter reports how many pending or approved applications
// reference a requirement.
type ApplicationCounter interface {
	CountActiveByRequirement(ctx context.Context, tx pgx.Tx, requirementID string) (int, error)
}

// Service covers the owner-facing lifecycle of a requirement. Applying and
// approving live in the matching package.
type Service struct {
	pool         db.TxBeginner
	store        Store
	applications ApplicationCounter
	events       EventWriter
	log          logrus.FieldLogger
	idGenerator  func() string
	now          func() time.Time
}

type CreateParams struct {
	CreatorID           string
	Title               string
	Description         string
	Agreement           *string
	AgreementButtonText *string
}

// UpdateParams leaves a field untouched when its pointer is nil.
type UpdateParams struct {
	Title       *string
	Description *string
	Status      *string
}

// AgreementParams replaces both agreement fields. A nil Agreement clears the
// text; a nil ButtonText restores the default label.
type AgreementParams struct {
	Agreement  *string
	ButtonText *string
}

type ListResult struct {
	Items []View
	Total int
}

func NewService(pool db.TxBeginner, store Store, applications ApplicationCounter) *Service {
	if store == nil {
		store = NewPGStore()
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &Service{
		pool:         pool,
		store:        store,
		applications: applications,
		log:          discard,
		idGenerator:  func() string { return uuid.NewString() },
		now:          time.Now,
	}
}

func (s *Service) WithEvents(w EventWriter) *Service {
	s.events = w
	return s
}

func (s *Service) WithLogger(log logrus.FieldLogger) *Service {
	s.log = log
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, params CreateParams) (View, error) {
	req, err := New(s.idGenerator(), Draft{
		Title:               params.Title,
		Description:         params.Description,
		Agreement:           params.Agreement,
		AgreementButtonText: params.AgreementButtonText,
		CreatedBy:           params.CreatorID,
	}, s.now())
	if err != nil {
		return View{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return View{}, fmt.Errorf("requirement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.store.Save(ctx, tx, req); err != nil {
		return View{}, err
	}
	if err := s.emit(ctx, tx, TopicCreated, NewEvent(req, params.CreatorID, "")); err != nil {
		return View{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return View{}, fmt.Errorf("requirement: commit tx: %w", err)
	}

	s.log.WithFields(logrus.Fields{"requirement_id": req.ID(), "creator_id": params.CreatorID}).Info("requirement created")
	return req.View(), nil
}

func (s *Service) Get(ctx context.Context, id string) (View, error) {
	tx, err := s.pool.BeginTx(ctx, db.ReadOnly)
	if err != nil {
		return View{}, fmt.Errorf("requirement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.store.FindByID(ctx, tx, id)
	if err != nil {
		return View{}, err
	}
	return req.View(), tx.Commit(ctx)
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return ListResult{}, ErrInvalidStatus
	}

	tx, err := s.pool.BeginTx(ctx, db.ReadOnly)
	if err != nil {
		return ListResult{}, fmt.Errorf("requirement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	items, total, err := s.store.FindAll(ctx, tx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: views(items), Total: total}, tx.Commit(ctx)
}

func (s *Service) ListByCreator(ctx context.Context, creatorID string) ([]View, error) {
	tx, err := s.pool.BeginTx(ctx, db.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("requirement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	items, err := s.store.FindByCreator(ctx, tx, creatorID)
	if err != nil {
		return nil, err
	}
	return views(items), tx.Commit(ctx)
}

// Update applies the owner's edits. A status string that does not parse, or
// that names CONFIRMING, is dropped and the rest of the edit still lands.
func (s *Service) Update(ctx context.Context, actorID, id string, params UpdateParams) (View, error) {
	return s.mutate(ctx, actorID, id, func(req *Requirement, now time.Time) (string, error) {
		if params.Title != nil {
			if err := req.UpdateTitle(*params.Title, now); err != nil {
				return "", err
			}
		}
		if params.Description != nil {
			req.UpdateDescription(*params.Description, now)
		}
		if params.Status == nil {
			return TopicUpdated, nil
		}
		status, err := ParseStatus(*params.Status)
		if err != nil || status == StatusConfirming {
			s.log.WithFields(logrus.Fields{"requirement_id": id, "status": *params.Status}).Warn("ignoring unparseable requirement status")
			return TopicUpdated, nil
		}
		if status == req.Status() {
			return TopicUpdated, nil
		}
		if err := req.UpdateStatus(status, now); err != nil {
			return "", err
		}
		return TopicStatusChanged, nil
	})
}

func (s *Service) UpdateAgreement(ctx context.Context, actorID, id string, params AgreementParams) (View, error) {
	return s.mutate(ctx, actorID, id, func(req *Requirement, now time.Time) (string, error) {
		if err := req.UpdateAgreementButtonText(params.ButtonText, now); err != nil {
			return "", err
		}
		req.UpdateAgreement(params.Agreement, now)
		return TopicUpdated, nil
	})
}

// Complete closes an in-progress requirement.
func (s *Service) Complete(ctx context.Context, actorID, id string) (View, error) {
	return s.mutate(ctx, actorID, id, func(req *Requirement, now time.Time) (string, error) {
		if req.Status() != StatusInProgress {
			return "", ErrInvalidTransition
		}
		return TopicStatusChanged, req.UpdateStatus(StatusCompleted, now)
	})
}

// Cancel withdraws a requirement from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, actorID, id string) (View, error) {
	return s.mutate(ctx, actorID, id, func(req *Requirement, now time.Time) (string, error) {
		if req.Status().Terminal() {
			return "", ErrInvalidTransition
		}
		return TopicStatusChanged, req.UpdateStatus(StatusCancelled, now)
	})
}

// Delete removes a requirement that no live application references.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("requirement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.store.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if !req.IsOwnedBy(actorID) {
		return ErrNotOwner
	}
	if s.applications != nil {
		active, err := s.applications.CountActiveByRequirement(ctx, tx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrHasActiveApplications
		}
	}
	if err := s.store.Delete(ctx, tx, id); err != nil {
		return err
	}
	if err := s.emit(ctx, tx, TopicDeleted, NewEvent(req, actorID, "")); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("requirement: commit tx: %w", err)
	}

	s.log.WithFields(logrus.Fields{"requirement_id": id, "actor_id": actorID}).Info("requirement deleted")
	return nil
}

// mutate locks the row, checks ownership, applies change and persists the
// result together with its outbox event.
func (s *Service) mutate(ctx context.Context, actorID, id string, change func(*Requirement, time.Time) (string, error)) (View, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return View{}, fmt.Errorf("requirement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.store.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return View{}, err
	}
	if !req.IsOwnedBy(actorID) {
		return View{}, ErrNotOwner
	}

	previous := req.Status()
	topic, err := change(req, s.now())
	if err != nil {
		return View{}, err
	}
	if err := s.store.Save(ctx, tx, req); err != nil {
		return View{}, err
	}
	if topic != TopicStatusChanged {
		previous = ""
	}
	if err := s.emit(ctx, tx, topic, NewEvent(req, actorID, previous)); err != nil {
		return View{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return View{}, fmt.Errorf("requirement: commit tx: %w", err)
	}
	return req.View(), nil
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, topic string, ev Event) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.Enqueue(ctx, tx, topic, ev); err != nil {
		return fmt.Errorf("requirement: enqueue outbox: %w", err)
	}
	return nil
}

func views(items []*Requirement) []View {
	out := make([]View, 0, len(items))
	for _, r := range items {
		out = append(out, r.View())
	}
	return out
}
