package requirement

import (
	"strings"
	"time"

	"github.com/kidwon/lifetree-app-api/apperr"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	// StatusConfirming belonged to the single-applicant workflow. Rows may still
	// carry it, but nothing transitions into it any more.
	StatusConfirming Status = "CONFIRMING"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusInProgress, StatusCompleted, StatusCancelled, StatusConfirming:
		return true
	}
	return false
}

// AcceptsApplications reports whether new applications may be filed.
func (s Status) AcceptsApplications() bool {
	return s == StatusCreated || s == StatusInProgress
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus is case-insensitive.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

const (
	MaxButtonTextLength = 20
	MaxTitleLength      = 255
	DefaultButtonText   = "I Agree"
)

var (
	ErrNotFound              = apperr.NotFound("requirement: not found")
	ErrBlankTitle            = apperr.Validation("requirement: title must not be blank")
	ErrInvalidTitle          = apperr.Validation("requirement: title must be at most 255 characters")
	ErrInvalidButtonText     = apperr.Validation("requirement: agreement button text must be 1-20 characters")
	ErrInvalidStatus         = apperr.Validation("requirement: invalid status")
	ErrMissingCreator        = apperr.Validation("requirement: creator id required")
	ErrNotOwner              = apperr.Forbidden("requirement: only the creator may modify this requirement")
	ErrInvalidTransition     = apperr.BusinessRule("requirement: invalid status transition")
	ErrHasActiveApplications = apperr.BusinessRule("requirement: pending or approved applications still reference it")
)

// Snapshot holds every persisted field of a Requirement.
type Snapshot struct {
	ID                  string
	Title               string
	Description         string
	Status              Status
	Agreement           *string
	AgreementButtonText *string
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Draft carries the caller-supplied fields for a new Requirement.
type Draft struct {
	Title               string
	Description         string
	Agreement           *string
	AgreementButtonText *string
	CreatedBy           string
}

// View is the read model handed to callers; the button text is already defaulted.
type View struct {
	ID                  string
	Title               string
	Description         string
	Status              Status
	Agreement           *string
	AgreementButtonText string
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Filters struct {
	CreatedBy string
	Status    Status
	Page      int
	PageSize  int
}

// Normalize applies the paging defaults: page 1, 20 per page, at most 100.
func (f Filters) Normalize() Filters {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	return f
}
