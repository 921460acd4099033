package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps users in process. It backs the in-memory server mode
// and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]User{}, byEmail: map[string]string{}}
}

func (r *MemoryRepository) CreateUser(_ context.Context, params CreateUserParams) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := normalizeEmail(params.Email)
	if _, exists := r.byEmail[email]; exists {
		return User{}, ErrDuplicateEmail
	}
	now := time.Now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID
	return user, nil
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) GetUserByID(_ context.Context, userID string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryRepository) UpdateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[user.ID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	email := normalizeEmail(user.Email)
	if owner, taken := r.byEmail[email]; taken && owner != user.ID {
		return User{}, ErrDuplicateEmail
	}
	delete(r.byEmail, current.Email)
	current.Email = email
	current.FullName = user.FullName
	current.UpdatedAt = user.UpdatedAt
	r.byID[user.ID] = current
	r.byEmail[email] = user.ID
	return current, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

type MemoryCredentialRepository struct {
	mu    sync.Mutex
	creds map[string]Credential
}

var _ CredentialRepository = (*MemoryCredentialRepository)(nil)

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{creds: map[string]Credential{}}
}

func (r *MemoryCredentialRepository) CreateCredential(_ context.Context, c Credential) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.creds[c.CredentialID]; exists {
		return Credential{}, ErrDuplicateCredential
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.creds[c.CredentialID] = c
	return c, nil
}

func (r *MemoryCredentialRepository) GetByCredentialID(_ context.Context, credentialID string) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[credentialID]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return c, nil
}

func (r *MemoryCredentialRepository) ListByUser(_ context.Context, userID string) ([]Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Credential{}
	for _, c := range r.creds {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryCredentialRepository) AdvanceCounter(_ context.Context, credentialID string, counter int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[credentialID]
	if !ok {
		return ErrCredentialNotFound
	}
	if counter <= c.Counter {
		return ErrCounterRegression
	}
	c.Counter = counter
	c.UpdatedAt = time.Now().UTC()
	r.creds[credentialID] = c
	return nil
}
