// Package notice implements the rate-limited permission-notice marker: a
// TTL-bounded "we already told this user" record keyed by hashed (chat, user).
package notice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

// ErrInvalidKey is returned when either hash key is empty.
var ErrInvalidKey = errors.New("chat and user hashes are required")

const keyPrefix = "permission_notice:"

// KV is the minimal key-value surface the store depends on: set with expiry,
// get, delete. Implemented by RedisKV in production and by fakes in tests.
type KV interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns (nil, false, nil) when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, key string) error
}

// Store is the permission-notice store.
type Store struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a permission-notice store with the given TTL.
func NewStore(kv KV, ttl time.Duration) *Store {
	return &Store{
		kv:     kv,
		ttl:    ttl,
		logger: slog.Default().With("component", "notice-store"),
		now:    time.Now,
	}
}

func noticeKey(chatHash, userHash string) string {
	return keyPrefix + chatHash + ":" + userHash
}

// Mark records that the user has been shown the permission notice.
// The marker expires after the configured TTL.
func (s *Store) Mark(ctx context.Context, chatHash, userHash string) (*models.PermissionNotice, error) {
	if chatHash == "" || userHash == "" {
		return nil, ErrInvalidKey
	}
	n := &models.PermissionNotice{
		ChatIDHash:     chatHash,
		SourceUserHash: userHash,
		LastNotifiedAt: s.now().UTC(),
	}
	data, err := n.MarshalWire()
	if err != nil {
		return nil, fmt.Errorf("encoding permission notice: %w", err)
	}
	if err := s.kv.Set(ctx, noticeKey(chatHash, userHash), data, s.ttl); err != nil {
		return nil, fmt.Errorf("storing permission notice: %w", err)
	}
	return n, nil
}

// Get returns the current notice, or nil when none exists (or it expired).
func (s *Store) Get(ctx context.Context, chatHash, userHash string) (*models.PermissionNotice, error) {
	if chatHash == "" || userHash == "" {
		return nil, ErrInvalidKey
	}
	data, ok, err := s.kv.Get(ctx, noticeKey(chatHash, userHash))
	if err != nil {
		return nil, fmt.Errorf("loading permission notice: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return models.UnmarshalWireNotice(data)
}

// Due reports whether the user should be shown the permission notice.
// Store errors are treated as "notice is due" (fail-open) and logged.
func (s *Store) Due(ctx context.Context, chatHash, userHash string) (bool, error) {
	if chatHash == "" || userHash == "" {
		return false, ErrInvalidKey
	}
	n, err := s.Get(ctx, chatHash, userHash)
	if err != nil {
		s.logger.Warn("Permission notice lookup failed, treating as due", "error", err)
		return true, nil
	}
	return n == nil, nil
}

// Clear removes the notice marker.
func (s *Store) Clear(ctx context.Context, chatHash, userHash string) error {
	if chatHash == "" || userHash == "" {
		return ErrInvalidKey
	}
	if err := s.kv.Del(ctx, noticeKey(chatHash, userHash)); err != nil {
		return fmt.Errorf("clearing permission notice: %w", err)
	}
	return nil
}

// RedisKV implements KV over a Redis client.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps a Redis client as the notice backing store.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Set stores value under key with the given expiry.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get loads the value under key; absent keys report ok=false.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Del removes the key.
func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
