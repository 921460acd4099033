package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/auth"
	"github.com/kidwon/lifetree-app-api/config"
	"github.com/kidwon/lifetree-app-api/db"
	"github.com/kidwon/lifetree-app-api/httpapi"
	"github.com/kidwon/lifetree-app-api/matching"
	"github.com/kidwon/lifetree-app-api/memstore"
	"github.com/kidwon/lifetree-app-api/metrics"
	"github.com/kidwon/lifetree-app-api/outbox"
	"github.com/kidwon/lifetree-app-api/requirement"
	"github.com/kidwon/lifetree-app-api/result"
)

const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

// app is the fully wired process: HTTP handler plus the outbox relay.
type app struct {
	handler http.Handler
	relay   *outbox.Relay
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// backend bundles the storage choices that differ between postgres and memory.
type backend struct {
	tx           db.TxBeginner
	requirements requirement.Store
	applications interface {
		application.Store
		requirement.ApplicationCounter
	}
	outbox      outbox.Store
	users       auth.Repository
	credentials auth.CredentialRepository
	results     result.Repository
}

func newApp(ctx context.Context, cfg config.Config, store string, log *logrus.Logger) (*app, error) {
	a := &app{}
	var b backend
	switch store {
	case storePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		b = postgresBackend(pool)
	case storeMemory:
		b = memoryBackend()
	default:
		return nil, fmt.Errorf("unknown store %q (want %s or %s)", store, storePostgres, storeMemory)
	}

	challenges, err := challengeStore(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	m := metrics.New()
	tokens := auth.NewService(b.users, auth.TokenOptions{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}).WithAdminEmails(cfg.AdminEmailList()...)
	passkeys := auth.NewPasskeyService(b.users, b.credentials, challenges, tokens, auth.RelyingParty{
		ID:   cfg.PasskeyRPID,
		Name: cfg.PasskeyRPName,
	}).WithChallengeTTL(cfg.ChallengeTTL)

	requirements := requirement.NewService(b.tx, b.requirements, b.applications).
		WithEvents(b.outbox).
		WithLogger(log.WithField("component", "requirement"))

	engine := matching.NewEngine(b.tx, b.requirements, b.applications, identityLookup(tokens)).
		WithEvents(b.outbox).
		WithRecorder(m).
		WithLogger(log.WithField("component", "matching")).
		WithIsolation(cfg.Isolation())

	results := result.NewService(b.results, result.RequirementCheckFunc(func(ctx context.Context, id string) error {
		_, err := requirements.Get(ctx, id)
		return err
	})).WithLogger(log.WithField("component", "result"))

	a.relay = outbox.NewRelay(b.tx, b.outbox, outbox.LogPublisher{Log: log.WithField("component", "outbox")}).
		WithBatchSize(cfg.OutboxBatchSize).
		WithMaxAttempts(cfg.OutboxMaxAttempts).
		WithRecorder(m).
		WithLogger(log.WithField("component", "outbox"))

	server := httpapi.NewServer(tokens, requirements, engine,
		httpapi.WithPasskeys(passkeys),
		httpapi.WithResults(results),
		httpapi.WithUsers(tokens),
		httpapi.WithMetrics(m),
		httpapi.WithRateLimiter(httpapi.NewRateLimiter(cfg.ApplyRatePerSecond, cfg.ApplyRateBurst)),
		httpapi.WithLogger(log.WithField("component", "http")),
	)
	a.handler = server.Routes()
	return a, nil
}

func postgresBackend(pool *pgxpool.Pool) backend {
	return backend{
		tx:           pool,
		requirements: requirement.NewPGStore(),
		applications: application.NewPGStore(),
		outbox:       outbox.NewPGStore(),
		users:        auth.NewRepository(pool),
		credentials:  auth.NewCredentialRepository(pool),
		results:      result.NewRepository(pool),
	}
}

func memoryBackend() backend {
	return backend{
		tx:           memstore.New(),
		requirements: memstore.RequirementStore{},
		applications: memstore.ApplicationStore{},
		outbox:       memstore.OutboxStore{},
		users:        auth.NewMemoryRepository(),
		credentials:  auth.NewMemoryCredentialRepository(),
		results:      result.NewMemoryRepository(),
	}
}

// challengeStore shares challenges through Redis when REDIS_ADDR is set so any
// replica can finish a ceremony another one began.
func challengeStore(ctx context.Context, cfg config.Config, a *app) (auth.ChallengeStore, error) {
	if cfg.RedisAddr == "" {
		return auth.NewMemoryChallengeStore(cfg.ChallengeCacheSize, cfg.ChallengeTTL), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return auth.NewRedisChallengeStore(client, "lifetree:challenge", cfg.ChallengeTTL), nil
}

func identityLookup(users *auth.Service) matching.IdentityFunc {
	return func(ctx context.Context, userID string) (matching.Identity, error) {
		u, err := users.GetUserByID(ctx, userID)
		if err != nil {
			return matching.Identity{}, err
		}
		return matching.Identity{ID: u.ID, Name: u.FullName, Email: u.Email}, nil
	}
}
