package result

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kidwon/lifetree-app-api/apperr"
)

// RequirementChecker confirms a related requirement exists. Any error matching
// apperr.ErrNotFound counts as absent.
type RequirementChecker interface {
	Exists(ctx context.Context, requirementID string) error
}

type RequirementCheckFunc func(ctx context.Context, requirementID string) error

func (f RequirementCheckFunc) Exists(ctx context.Context, requirementID string) error {
	return f(ctx, requirementID)
}

type Service struct {
	repo         Repository
	requirements RequirementChecker
	log          logrus.FieldLogger
	now          func() time.Time
}

func NewService(repo Repository, requirements RequirementChecker) *Service {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &Service{repo: repo, requirements: requirements, log: discard, now: time.Now}
}

func (s *Service) WithLogger(log logrus.FieldLogger) *Service {
	s.log = log
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, creatorID string, params CreateParams) (Record, error) {
	if creatorID == "" {
		return Record{}, apperr.Validation("result: creator id required")
	}
	title, err := cleanTitle(params.Title)
	if err != nil {
		return Record{}, err
	}
	if params.RelatedRequirementID != nil && s.requirements != nil {
		if err := s.requirements.Exists(ctx, *params.RelatedRequirementID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return Record{}, ErrUnknownRequirement
			}
			return Record{}, fmt.Errorf("result: check requirement: %w", err)
		}
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	rec, err := s.repo.Insert(ctx, Record{
		ID:                   uuid.NewString(),
		Title:                title,
		Description:          params.Description,
		Status:               StatusDraft,
		RelatedRequirementID: params.RelatedRequirementID,
		CreatedBy:            creatorID,
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		return Record{}, err
	}
	s.log.WithFields(logrus.Fields{"result_id": rec.ID, "creator_id": creatorID}).Info("result created")
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByCreator(ctx context.Context, userID string) ([]Record, error) {
	return s.repo.ListByCreator(ctx, userID)
}

func (s *Service) ListByRequirement(ctx context.Context, requirementID string) ([]Record, error) {
	return s.repo.ListByRequirement(ctx, requirementID)
}

// Update applies the creator's edits. An unrecognised status is ignored and
// the remaining fields still land.
func (s *Service) Update(ctx context.Context, actorID, id string, params UpdateParams) (Record, error) {
	rec, err := s.owned(ctx, actorID, id)
	if err != nil {
		return Record{}, err
	}
	if params.Title != nil {
		title, err := cleanTitle(*params.Title)
		if err != nil {
			return Record{}, err
		}
		rec.Title = title
	}
	if params.Description != nil {
		rec.Description = *params.Description
	}
	if params.Status != nil {
		if status, err := ParseStatus(*params.Status); err == nil {
			rec.Status = status
		} else {
			s.log.WithFields(logrus.Fields{"result_id": id, "status": *params.Status}).Warn("ignoring unparseable result status")
		}
	}
	rec.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
	return s.repo.Update(ctx, rec)
}

func (s *Service) ChangeStatus(ctx context.Context, actorID, id string, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, ErrBadStatus
	}
	rec, err := s.owned(ctx, actorID, id)
	if err != nil {
		return Record{}, err
	}
	rec.Status = status
	rec.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
	return s.repo.Update(ctx, rec)
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.owned(ctx, actorID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) owned(ctx context.Context, actorID, id string) (Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.CreatedBy != actorID {
		return Record{}, ErrForbidden
	}
	return rec, nil
}

func cleanTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", ErrBlankTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrInvalidTitle
	}
	return title, nil
}
