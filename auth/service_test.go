package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kidwon/lifetree-app-api/apperr"
)

func newTestService() *Service {
	return NewService(NewMemoryRepository(), TokenOptions{
		Secret:   "test-secret",
		Issuer:   "lifetree",
		Audience: "lifetree-app",
		TTL:      time.Hour,
	})
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc := newTestService()
	req := RegisterRequest{
		Email:    "  Alice@Example.com ",
		Password: "supersafe",
		FullName: "Alice Applicant",
	}

	ctx := context.Background()
	user, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalised email, got %q", user.Email)
	}
	if user.Role != RoleUser {
		t.Fatalf("register: expected role %s got %s", RoleUser, user.Role)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: "ALICE@example.com", Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.User.ID != user.ID {
		t.Fatalf("login: expected user id %q got %q", user.ID, resp.User.ID)
	}

	claims, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.UserID != user.ID || claims.Subject != user.ID {
		t.Fatalf("verify token: expected %q got %q/%q", user.ID, claims.UserID, claims.Subject)
	}
	if claims.Email != user.Email || claims.Role != RoleUser {
		t.Fatalf("verify token: unexpected claims %+v", claims)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := newTestService()

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Password: "short",
		FullName: "Alice",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	_, err = svc.Register(context.Background(), RegisterRequest{Password: "strongpassword", FullName: "  "})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for missing fields, got %v", err)
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	svc := newTestService()
	req := RegisterRequest{Email: "alice@example.com", Password: "strongpassword", FullName: "Alice"}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	req.Email = "ALICE@example.com"
	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Register(context.Background(), RegisterRequest{Email: "bob@example.com", Password: "correct-horse", FullName: "Bob"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, req := range []LoginRequest{
		{Email: "unknown@example.com", Password: "irrelevant"},
		{Email: "bob@example.com", Password: "wrong-horse"},
	} {
		_, err := svc.Login(context.Background(), req)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", req.Email, err)
		}
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized kind, got %v", req.Email, err)
		}
	}
}

func TestService_VerifyTokenRejects(t *testing.T) {
	svc := newTestService()
	user := User{ID: "u1", Email: "u1@example.com", Role: RoleUser}
	good, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	otherAudience := NewService(NewMemoryRepository(), TokenOptions{Secret: "test-secret", Issuer: "lifetree", Audience: "someone-else"})
	if _, err := otherAudience.VerifyToken(good); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("audience mismatch: expected ErrInvalidToken, got %v", err)
	}

	otherSecret := NewService(NewMemoryRepository(), TokenOptions{Secret: "nope", Issuer: "lifetree", Audience: "lifetree-app"})
	if _, err := otherSecret.VerifyToken(good); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("secret mismatch: expected ErrInvalidToken, got %v", err)
	}

	later := newTestService().WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	if _, err := later.VerifyToken(good); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: expected ErrInvalidToken, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1", Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := svc.VerifyToken(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none: expected ErrInvalidToken, got %v", err)
	}
}

func TestService_GetUserByID(t *testing.T) {
	svc := newTestService()
	user, err := svc.Register(context.Background(), RegisterRequest{Email: "c@example.com", Password: "12345678", FullName: "Cee"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := svc.GetUserByID(context.Background(), user.ID)
	if err != nil || got.FullName != "Cee" {
		t.Fatalf("get user: %v %+v", err, got)
	}
	if _, err := svc.GetUserByID(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_UpdateProfile(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, err := svc.Register(ctx, RegisterRequest{Email: "alice@example.com", Password: "strongpassword", FullName: "Alice"})
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: "bob@example.com", Password: "strongpassword", FullName: "Bob"}); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	name, email := "  Alice Renamed ", "Alice.New@Example.com"
	updated, err := svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{FullName: &name, Email: &email})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.FullName != "Alice Renamed" || updated.Email != "alice.new@example.com" || updated.Role != RoleUser {
		t.Fatalf("unexpected profile: %+v", updated)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "alice.new@example.com", Password: "strongpassword"}); err != nil {
		t.Fatalf("login with new email: %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "strongpassword"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old email should no longer log in, got %v", err)
	}

	taken := "BOB@example.com"
	if _, err := svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{Email: &taken}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	blank := "   "
	if _, err := svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{FullName: &blank}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, "missing", ProfileUpdate{FullName: &name}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestService_AdminEmailsAndListUsers(t *testing.T) {
	svc := newTestService().WithAdminEmails(" Root@Example.com ")
	ctx := context.Background()
	root, err := svc.Register(ctx, RegisterRequest{Email: "root@example.com", Password: "strongpassword", FullName: "Root"})
	if err != nil {
		t.Fatalf("register root: %v", err)
	}
	if root.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %s", root.Role)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: "dee@example.com", Password: "strongpassword", FullName: "Dee"}); err != nil {
		t.Fatalf("register dee: %v", err)
	}

	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	roles := map[string]Role{}
	for _, u := range users {
		roles[u.Email] = u.Role
	}
	if roles["root@example.com"] != RoleAdmin || roles["dee@example.com"] != RoleUser {
		t.Fatalf("unexpected roles: %v", roles)
	}
}
