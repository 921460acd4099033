package application

import (
	"errors"
	"time"

	"github.com/kidwon/lifetree-app-api/apperr"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Active statuses occupy the single slot an applicant has per requirement.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

var (
	ErrNotFound = apperr.NotFound("application: not found")
	// ErrDuplicateActive is raised by the storage backstop on (requirement, applicant).
	ErrDuplicateActive = apperr.BusinessRule("application: applicant already holds an active application")
	// ErrIllegalState means approve or reject reached a resolved application.
	ErrIllegalState = errors.New("application: not pending")
)

// Snapshot holds every persisted field of an Application.
type Snapshot struct {
	ID            string
	RequirementID string
	ApplicantID   string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// View is the read model handed to callers.
type View struct {
	ID            string
	RequirementID string
	ApplicantID   string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
