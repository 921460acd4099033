package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passkeyFixture struct {
	svc     *PasskeyService
	users   *MemoryRepository
	creds   *MemoryCredentialRepository
	store   *MemoryChallengeStore
	clock   time.Time
	user    *User
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func newPasskeyFixture(t *testing.T) *passkeyFixture {
	t.Helper()
	f := &passkeyFixture{
		users: NewMemoryRepository(),
		creds: NewMemoryCredentialRepository(),
		store: NewMemoryChallengeStore(16, time.Hour),
		clock: time.Now(),
	}
	tokens := NewService(f.users, TokenOptions{Secret: "test-secret", TTL: time.Hour})
	f.svc = NewPasskeyService(f.users, f.creds, f.store, tokens, RelyingParty{ID: "lifetree.app", Name: "LifeTree"}).
		WithClock(func() time.Time { return f.clock })

	user, err := tokens.Register(context.Background(), RegisterRequest{Email: "pat@example.com", Password: "password1", FullName: "Pat"})
	require.NoError(t, err)
	f.user = user

	f.public, f.private, err = ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return f
}

func sign(t *testing.T, key ed25519.PrivateKey, msg []byte) string {
	t.Helper()
	return base64.RawURLEncoding.EncodeToString(ed25519.Sign(key, msg))
}

func (f *passkeyFixture) register(t *testing.T) Credential {
	t.Helper()
	ctx := context.Background()
	opts, err := f.svc.BeginRegistration(ctx, f.user.ID)
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(opts.Challenge)
	require.NoError(t, err)

	cred, err := f.svc.FinishRegistration(ctx, f.user.ID, RegistrationResult{
		Challenge:    opts.Challenge,
		CredentialID: "cred-1",
		Name:         "laptop",
		PublicKey:    base64.RawURLEncoding.EncodeToString(f.public),
		Signature:    sign(t, f.private, raw),
	})
	require.NoError(t, err)
	return cred
}

func (f *passkeyFixture) assertion(t *testing.T, challenge string, counter int64) Assertion {
	t.Helper()
	msg, err := AssertionMessage(challenge, counter)
	require.NoError(t, err)
	return Assertion{Challenge: challenge, CredentialID: "cred-1", Counter: counter, Signature: sign(t, f.private, msg)}
}

func TestPasskeyRegistrationAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newPasskeyFixture(t)

	opts, err := f.svc.BeginRegistration(ctx, f.user.ID)
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(opts.Challenge)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.Equal(t, "pat@example.com", opts.User.Name)
	assert.Equal(t, []CredentialParam{{Type: "public-key", Alg: -8}}, opts.PubKeyCredParams)
	assert.EqualValues(t, 5*60*1000, opts.Timeout)

	cred := f.register(t)
	assert.Equal(t, f.user.ID, cred.UserID)
	assert.Zero(t, cred.Counter)

	login, err := f.svc.BeginLogin(ctx, "PAT@example.com")
	require.NoError(t, err)
	assert.Equal(t, []CredentialDescriptor{{Type: "public-key", ID: "cred-1"}}, login.AllowCredentials)

	res, err := f.svc.FinishLogin(ctx, f.assertion(t, login.Challenge, 1))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, res.User.ID)
	claims, err := f.svc.tokens.VerifyToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.UserID)
}

func TestPasskeyChallengeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newPasskeyFixture(t)
	f.register(t)

	login, err := f.svc.BeginLogin(ctx, "")
	require.NoError(t, err)
	a := f.assertion(t, login.Challenge, 1)

	_, err = f.svc.FinishLogin(ctx, a)
	require.NoError(t, err)
	_, err = f.svc.FinishLogin(ctx, a)
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestPasskeyFailedAttemptBurnsChallenge(t *testing.T) {
	ctx := context.Background()
	f := newPasskeyFixture(t)
	f.register(t)

	login, err := f.svc.BeginLogin(ctx, "pat@example.com")
	require.NoError(t, err)
	bad := f.assertion(t, login.Challenge, 1)
	bad.Signature = sign(t, f.private, []byte("something else"))

	_, err = f.svc.FinishLogin(ctx, bad)
	assert.ErrorIs(t, err, ErrBadSignature)
	_, err = f.svc.FinishLogin(ctx, f.assertion(t, login.Challenge, 1))
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestPasskeyExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	f := newPasskeyFixture(t)
	f.register(t)

	login, err := f.svc.BeginLogin(ctx, "pat@example.com")
	require.NoError(t, err)
	f.clock = f.clock.Add(5*time.Minute + time.Second)

	_, err = f.svc.FinishLogin(ctx, f.assertion(t, login.Challenge, 1))
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestPasskeyCounterMustIncrease(t *testing.T) {
	ctx := context.Background()
	f := newPasskeyFixture(t)
	f.register(t)

	for _, counter := range []int64{5, 5, 3} {
		login, err := f.svc.BeginLogin(ctx, "pat@example.com")
		require.NoError(t, err)
		_, err = f.svc.FinishLogin(ctx, f.assertion(t, login.Challenge, counter))
		if counter == 5 && err == nil {
			continue
		}
		assert.ErrorIs(t, err, ErrCounterRegression, "counter %d", counter)
	}

	stored, err := f.creds.GetByCredentialID(ctx, "cred-1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, stored.Counter)
}

func TestPasskeyRegistrationRejectsForeignChallenge(t *testing.T) {
	ctx := context.Background()
	f := newPasskeyFixture(t)

	login, err := f.svc.BeginLogin(ctx, "")
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(login.Challenge)
	require.NoError(t, err)

	_, err = f.svc.FinishRegistration(ctx, f.user.ID, RegistrationResult{
		Challenge:    login.Challenge,
		CredentialID: "cred-x",
		PublicKey:    base64.RawURLEncoding.EncodeToString(f.public),
		Signature:    sign(t, f.private, raw),
	})
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestPasskeyRegistrationNeedsPossession(t *testing.T) {
	ctx := context.Background()
	f := newPasskeyFixture(t)
	_, otherKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	opts, err := f.svc.BeginRegistration(ctx, f.user.ID)
	require.NoError(t, err)
	raw, _ := base64.RawURLEncoding.DecodeString(opts.Challenge)

	_, err = f.svc.FinishRegistration(ctx, f.user.ID, RegistrationResult{
		Challenge:    opts.Challenge,
		CredentialID: "cred-1",
		PublicKey:    base64.RawURLEncoding.EncodeToString(f.public),
		Signature:    sign(t, otherKey, raw),
	})
	assert.ErrorIs(t, err, ErrBadSignature)

	opts, err = f.svc.BeginRegistration(ctx, f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.FinishRegistration(ctx, f.user.ID, RegistrationResult{
		Challenge:    opts.Challenge,
		CredentialID: "cred-1",
		PublicKey:    "dG9vLXNob3J0",
		Signature:    "AA",
	})
	assert.ErrorIs(t, err, ErrMalformedPasskey)
}

func TestMemoryChallengeStoreConsumeOnce(t *testing.T) {
	store := NewMemoryChallengeStore(4, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Challenge{Value: "abc", Purpose: PurposeLogin}))
	assert.Error(t, store.Put(ctx, Challenge{Value: "abc"}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "abc"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestMemoryChallengeStoreIsBounded(t *testing.T) {
	store := NewMemoryChallengeStore(2, time.Minute)
	ctx := context.Background()
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, Challenge{Value: v}))
	}
	assert.Equal(t, 2, store.Len())
	_, err := store.Consume(ctx, "a")
	assert.ErrorIs(t, err, ErrChallengeInvalid, "oldest challenge evicted")
}

func TestRedisChallengeKeyUsesSingleSeparator(t *testing.T) {
	for _, prefix := range []string{"lifetree:challenge", "lifetree:challenge:"} {
		store := NewRedisChallengeStore(nil, prefix, time.Minute)
		assert.Equal(t, "lifetree:challenge:abc", store.key("abc"), "prefix %q", prefix)
	}
	assert.Equal(t, "auth:challenge:abc", NewRedisChallengeStore(nil, "", time.Minute).key("abc"))
}
