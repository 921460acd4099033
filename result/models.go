package result

import (
	"strings"
	"time"

	"github.com/kidwon/lifetree-app-api/apperr"
)

// Status represents the lifecycle of a result record.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusCompleted Status = "COMPLETED"
	StatusArchived  Status = "ARCHIVED"
	StatusRejected  Status = "REJECTED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusCompleted, StatusArchived, StatusRejected:
		return true
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrBadStatus
	}
	return s, nil
}

var (
	ErrNotFound           = apperr.NotFound("result: not found")
	ErrForbidden          = apperr.Forbidden("result: only the creator may modify this result")
	ErrBadStatus          = apperr.Validation("result: invalid status")
	ErrBlankTitle         = apperr.Validation("result: title must not be blank")
	ErrInvalidTitle       = apperr.Validation("result: title must be at most 255 characters")
	ErrUnknownRequirement = apperr.Validation("result: related requirement does not exist")
)

// MaxTitleLength matches the title column, counted in characters.
const MaxTitleLength = 255

// Record mirrors the results table.
type Record struct {
	ID                   string
	Title                string
	Description          string
	Status               Status
	RelatedRequirementID *string
	CreatedBy            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type CreateParams struct {
	Title                string
	Description          string
	RelatedRequirementID *string
}

// UpdateParams leaves a field untouched when its pointer is nil.
type UpdateParams struct {
	Title       *string
	Description *string
	Status      *string
}
