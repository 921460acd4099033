package matching

import "github.com/kidwon/lifetree-app-api/apperr"

var (
	ErrMissingActor           = apperr.Validation("matching: caller id required")
	ErrApplicationNotFound    = apperr.NotFound("matching: application not found for this requirement")
	ErrSelfApplication        = apperr.BusinessRule("matching: cannot apply to own requirement")
	ErrNotOpen                = apperr.BusinessRule("matching: requirement not open for applications")
	ErrDuplicateApplication   = apperr.BusinessRule("matching: duplicate application")
	ErrAlreadyResolved        = apperr.BusinessRule("matching: application already resolved")
	ErrConcurrentModification = apperr.BusinessRule("matching: requirement changed concurrently, retry")
	ErrNotRequirementOwner    = apperr.Forbidden("matching: only the requirement creator may resolve applications")
)
