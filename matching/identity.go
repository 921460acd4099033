package matching

import "context"

// Identity is the display information shown next to an application.
type Identity struct {
	ID    string
	Name  string
	Email string
}

// IdentityLookup resolves a user id for view assembly. A missing user should
// be reported with an error matching apperr.ErrNotFound.
type IdentityLookup interface {
	LookupIdentity(ctx context.Context, userID string) (Identity, error)
}

// IdentityFunc adapts a function to IdentityLookup.
type IdentityFunc func(ctx context.Context, userID string) (Identity, error)

func (f IdentityFunc) LookupIdentity(ctx context.Context, userID string) (Identity, error) {
	return f(ctx, userID)
}
