package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kidwon/lifetree-app-api/apperr"
)

var (
	ErrInvalidCredentials = apperr.Unauthorized("auth: invalid credentials")
	ErrInvalidToken       = apperr.Unauthorized("auth: invalid token")
	ErrWeakPassword       = apperr.Validation("auth: password must be at least 8 characters")
	ErrMissingFields      = apperr.Validation("auth: email and full_name are required")
	ErrBlankProfileField  = apperr.Validation("auth: name and email must not be blank")
)

const minPasswordLength = 8

// TokenOptions controls issued tokens. Issuer and Audience are checked on
// verification when set.
type TokenOptions struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Service handles authentication business logic.
type Service struct {
	repo   Repository
	tokens TokenOptions
	admins map[string]bool
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(repo Repository, tokens TokenOptions) *Service {
	if tokens.TTL <= 0 {
		tokens.TTL = 24 * time.Hour
	}
	return &Service{repo: repo, tokens: tokens, admins: map[string]bool{}, now: time.Now}
}

// WithAdminEmails makes accounts registered under these addresses ADMIN.
func (s *Service) WithAdminEmails(emails ...string) *Service {
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			s.admins[e] = true
		}
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new account with the USER role, or ADMIN for a
// configured admin address.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.FullName)
	if email == "" || name == "" {
		return nil, ErrMissingFields
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	role := RoleUser
	if s.admins[email] {
		role = RoleAdmin
	}
	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		FullName:     name,
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates a user and returns a signed token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	// Passkey-only accounts have no password hash.
	if user.PasswordHash == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: user}, nil
}

// GetUserByID returns the stored profile of a user.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ProfileUpdate leaves a field untouched when its pointer is nil.
type ProfileUpdate struct {
	FullName *string
	Email    *string
}

// UpdateProfile changes the caller's own name or email. Tokens issued before
// the change keep the old email claim until they expire.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return nil, ErrBlankProfileField
		}
		user.FullName = name
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" {
			return nil, ErrBlankProfileField
		}
		user.Email = email
	}
	user.UpdatedAt = s.now().UTC()

	updated, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListUsers returns every account, oldest first. Callers gate it to admins.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// IssueToken signs an HS256 token for user.
func (s *Service) IssueToken(user User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.tokens.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokens.TTL)),
		},
	}
	if s.tokens.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.tokens.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.tokens.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates signature, expiry, issuer and audience.
func (s *Service) VerifyToken(tokenString string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.tokens.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.tokens.Issuer))
	}
	if s.tokens.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.tokens.Audience))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.tokens.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
