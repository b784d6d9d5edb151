package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock       = "LOCK"
	idemUnresolved = "UNRESOLVED"
	idemResPrefix  = "RES:"
)

// IdempotencyStore remembers the response of a completed request under a
// client-supplied key. While a request is in flight the key holds a lock
// marker; afterwards it holds the serialized response.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
}

// SaveResult replaces the lock marker with the completed response.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResPrefix+jsonPayload, s.ttl).Err()
}

// MarkUnresolved keeps the key taken for the full TTL without a result, so
// a retry with the same key cannot run the request again.
func (s *IdempotencyStore) MarkUnresolved(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, idemUnresolved, s.ttl).Err()
}

// IsUnresolved reports whether the key was marked by MarkUnresolved.
func (s *IdempotencyStore) IsUnresolved(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return v == idemUnresolved, nil
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if payload, ok := strings.CutPrefix(v, idemResPrefix); ok {
		return payload, true, nil
	}

	return "", false, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
