// Package redis implements a Redis-backed key-value store for nxt-shelf.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banux/nxt-shelf/internal/backend/kv"
)

// client is the subset of *redis.Client the store uses.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Store keeps values in Redis with no expiry.
type Store struct {
	client client
}

// NewStore wraps a connected Redis client.
func NewStore(c *redis.Client) *Store {
	return &Store{client: c}
}

// Get returns the value stored under key, or kv.ErrMissing.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrMissing
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
