package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kidwon/lifetree-app-api/apperr"
)

// ErrChallengeInvalid covers unknown, reused and expired challenges alike.
var ErrChallengeInvalid = apperr.Unauthorized("auth: challenge invalid or expired")

type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposeLogin    Purpose = "login"
)

// Challenge is a single-use nonce bound to a ceremony and, when known, a user.
type Challenge struct {
	Value     string    `json:"value"`
	Purpose   Purpose   `json:"purpose"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeStore keeps outstanding challenges. Consume removes the challenge
// before returning it, so a value is honoured at most once.
type ChallengeStore interface {
	Put(ctx context.Context, c Challenge) error
	Consume(ctx context.Context, value string) (Challenge, error)
}

// MemoryChallengeStore bounds outstanding challenges by count and age.
type MemoryChallengeStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, Challenge]
}

func NewMemoryChallengeStore(size int, ttl time.Duration) *MemoryChallengeStore {
	if size <= 0 {
		size = 10000
	}
	return &MemoryChallengeStore{cache: expirable.NewLRU[string, Challenge](size, nil, ttl)}
}

func (s *MemoryChallengeStore) Put(_ context.Context, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(c.Value) {
		return fmt.Errorf("auth: challenge collision")
	}
	s.cache.Add(c.Value, c)
	return nil
}

func (s *MemoryChallengeStore) Consume(_ context.Context, value string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache.Get(value)
	if !ok {
		return Challenge{}, ErrChallengeInvalid
	}
	s.cache.Remove(value)
	return c, nil
}

func (s *MemoryChallengeStore) Len() int {
	return s.cache.Len()
}

// RedisChallengeStore shares challenges between API instances.
type RedisChallengeStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisChallengeStore keys challenges as "<prefix>:<value>". A trailing
// colon on prefix is dropped.
func NewRedisChallengeStore(client *redis.Client, prefix string, ttl time.Duration) *RedisChallengeStore {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "auth:challenge"
	}
	return &RedisChallengeStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisChallengeStore) key(value string) string {
	return s.prefix + ":" + value
}

func (s *RedisChallengeStore) Put(ctx context.Context, c Challenge) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("auth: encode challenge: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(c.Value), body, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("auth: store challenge: %w", err)
	}
	if !ok {
		return fmt.Errorf("auth: challenge collision")
	}
	return nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, value string) (Challenge, error) {
	body, err := s.client.GetDel(ctx, s.key(value)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, ErrChallengeInvalid
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("auth: consume challenge: %w", err)
	}
	var c Challenge
	if err := json.Unmarshal(body, &c); err != nil {
		return Challenge{}, fmt.Errorf("auth: decode challenge: %w", err)
	}
	return c, nil
}
