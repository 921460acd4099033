package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kidwon/lifetree-app-api/apperr"
)

var (
	ErrMalformedPasskey = apperr.Validation("auth: malformed passkey payload")
	ErrBadSignature     = apperr.Unauthorized("auth: passkey signature invalid")
)

const (
	challengeBytes = 32
	// coseEdDSA is the COSE algorithm identifier for Ed25519.
	coseEdDSA = -8
)

type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PasskeyUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type CredentialParam struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

type CredentialDescriptor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RegistrationOptions is handed to the client to start key creation.
type RegistrationOptions struct {
	Challenge          string                 `json:"challenge"`
	RP                 RelyingParty           `json:"rp"`
	User               PasskeyUser            `json:"user"`
	PubKeyCredParams   []CredentialParam      `json:"pubKeyCredParams"`
	Timeout            int64                  `json:"timeout"`
	ExcludeCredentials []CredentialDescriptor `json:"excludeCredentials"`
	Attestation        string                 `json:"attestation"`
}

// RegistrationResult carries the new public key and a signature over the
// raw challenge bytes, proving the client holds the private key.
type RegistrationResult struct {
	Challenge    string `json:"challenge"`
	CredentialID string `json:"credential_id"`
	Name         string `json:"name"`
	PublicKey    string `json:"public_key"`
	Signature    string `json:"signature"`
}

type LoginOptions struct {
	Challenge        string                 `json:"challenge"`
	Timeout          int64                  `json:"timeout"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials"`
	UserVerification string                 `json:"userVerification"`
}

// Assertion is a login response: a signature over AssertionMessage.
type Assertion struct {
	Challenge    string `json:"challenge"`
	CredentialID string `json:"credential_id"`
	Counter      int64  `json:"counter"`
	Signature    string `json:"signature"`
}

// PasskeyService runs the passwordless registration and login ceremonies.
type PasskeyService struct {
	users       Repository
	credentials CredentialRepository
	challenges  ChallengeStore
	tokens      *Service
	rp          RelyingParty
	ttl         time.Duration
	now         func() time.Time
	random      io.Reader
}

func NewPasskeyService(users Repository, credentials CredentialRepository, challenges ChallengeStore, tokens *Service, rp RelyingParty) *PasskeyService {
	return &PasskeyService{
		users:       users,
		credentials: credentials,
		challenges:  challenges,
		tokens:      tokens,
		rp:          rp,
		ttl:         5 * time.Minute,
		now:         time.Now,
		random:      rand.Reader,
	}
}

func (s *PasskeyService) WithChallengeTTL(ttl time.Duration) *PasskeyService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

func (s *PasskeyService) WithClock(now func() time.Time) *PasskeyService {
	s.now = now
	return s
}

func (s *PasskeyService) BeginRegistration(ctx context.Context, userID string) (RegistrationOptions, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return RegistrationOptions{}, err
	}
	existing, err := s.credentials.ListByUser(ctx, userID)
	if err != nil {
		return RegistrationOptions{}, err
	}
	challenge, err := s.issue(ctx, PurposeRegister, userID)
	if err != nil {
		return RegistrationOptions{}, err
	}
	return RegistrationOptions{
		Challenge:          challenge,
		RP:                 s.rp,
		User:               PasskeyUser{ID: user.ID, Name: user.Email, DisplayName: user.FullName},
		PubKeyCredParams:   []CredentialParam{{Type: "public-key", Alg: coseEdDSA}},
		Timeout:            s.ttl.Milliseconds(),
		ExcludeCredentials: descriptors(existing),
		Attestation:        "none",
	}, nil
}

func (s *PasskeyService) FinishRegistration(ctx context.Context, userID string, res RegistrationResult) (Credential, error) {
	raw, err := s.redeem(ctx, res.Challenge, PurposeRegister, userID)
	if err != nil {
		return Credential{}, err
	}
	pub, err := decode(res.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return Credential{}, ErrMalformedPasskey
	}
	sig, err := decode(res.Signature)
	if err != nil {
		return Credential{}, ErrMalformedPasskey
	}
	if strings.TrimSpace(res.CredentialID) == "" {
		return Credential{}, ErrMalformedPasskey
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), raw, sig) {
		return Credential{}, ErrBadSignature
	}

	name := strings.TrimSpace(res.Name)
	if name == "" {
		name = "passkey"
	}
	return s.credentials.CreateCredential(ctx, Credential{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		CredentialID: res.CredentialID,
		PublicKey:    pub,
	})
}

// BeginLogin issues a login challenge. A known email narrows the allowed
// credentials; an unknown one gets an unbound challenge so the response does
// not reveal whether the account exists.
func (s *PasskeyService) BeginLogin(ctx context.Context, email string) (LoginOptions, error) {
	var (
		userID string
		allow  = []CredentialDescriptor{}
	)
	if email != "" {
		user, err := s.users.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			creds, err := s.credentials.ListByUser(ctx, user.ID)
			if err != nil {
				return LoginOptions{}, err
			}
			userID = user.ID
			allow = descriptors(creds)
		case !errors.Is(err, ErrUserNotFound):
			return LoginOptions{}, err
		}
	}
	challenge, err := s.issue(ctx, PurposeLogin, userID)
	if err != nil {
		return LoginOptions{}, err
	}
	return LoginOptions{
		Challenge:        challenge,
		Timeout:          s.ttl.Milliseconds(),
		RPID:             s.rp.ID,
		AllowCredentials: allow,
		UserVerification: "preferred",
	}, nil
}

func (s *PasskeyService) FinishLogin(ctx context.Context, a Assertion) (LoginResult, error) {
	c, err := s.challenges.Consume(ctx, a.Challenge)
	if err != nil {
		return LoginResult{}, err
	}
	if c.Purpose != PurposeLogin || !s.now().Before(c.ExpiresAt) {
		return LoginResult{}, ErrChallengeInvalid
	}

	cred, err := s.credentials.GetByCredentialID(ctx, a.CredentialID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if c.UserID != "" && c.UserID != cred.UserID {
		return LoginResult{}, ErrInvalidCredentials
	}
	if a.Counter <= cred.Counter {
		return LoginResult{}, ErrCounterRegression
	}

	msg, err := AssertionMessage(a.Challenge, a.Counter)
	if err != nil {
		return LoginResult{}, err
	}
	sig, err := decode(a.Signature)
	if err != nil {
		return LoginResult{}, ErrMalformedPasskey
	}
	if !ed25519.Verify(ed25519.PublicKey(cred.PublicKey), msg, sig) {
		return LoginResult{}, ErrBadSignature
	}
	if err := s.credentials.AdvanceCounter(ctx, cred.CredentialID, a.Counter); err != nil {
		return LoginResult{}, err
	}

	user, err := s.users.GetUserByID(ctx, cred.UserID)
	if err != nil {
		return LoginResult{}, err
	}
	token, err := s.tokens.IssueToken(user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: user}, nil
}

// AssertionMessage is the byte string a login signature covers: the raw
// challenge followed by the big-endian counter.
func AssertionMessage(challenge string, counter int64) ([]byte, error) {
	raw, err := decode(challenge)
	if err != nil {
		return nil, ErrMalformedPasskey
	}
	msg := make([]byte, len(raw)+8)
	copy(msg, raw)
	binary.BigEndian.PutUint64(msg[len(raw):], uint64(counter))
	return msg, nil
}

func (s *PasskeyService) issue(ctx context.Context, purpose Purpose, userID string) (string, error) {
	buf := make([]byte, challengeBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("auth: generate challenge: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(buf)
	err := s.challenges.Put(ctx, Challenge{
		Value:     value,
		Purpose:   purpose,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.ttl),
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// redeem consumes the challenge before any verification so a failed attempt
// still burns it.
func (s *PasskeyService) redeem(ctx context.Context, value string, purpose Purpose, userID string) ([]byte, error) {
	c, err := s.challenges.Consume(ctx, value)
	if err != nil {
		return nil, err
	}
	if c.Purpose != purpose || c.UserID != userID || !s.now().Before(c.ExpiresAt) {
		return nil, ErrChallengeInvalid
	}
	raw, err := decode(value)
	if err != nil {
		return nil, ErrMalformedPasskey
	}
	return raw, nil
}

func descriptors(creds []Credential) []CredentialDescriptor {
	out := make([]CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		out = append(out, CredentialDescriptor{Type: "public-key", ID: c.CredentialID})
	}
	return out
}

func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
