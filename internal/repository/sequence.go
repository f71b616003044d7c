package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const sequenceKeyPrefix = "certificate_seq:"

// RedisSequence hands out monotonically increasing counters with INCR.
type RedisSequence struct {
	client *redis.Client
}

// NewRedisSequence wraps a redis client.
func NewRedisSequence(client *redis.Client) *RedisSequence {
	return &RedisSequence{client: client}
}

// Next atomically increments and returns the counter for key.
func (s *RedisSequence) Next(ctx context.Context, key string) (int64, error) {
	if s == nil || s.client == nil {
		return 0, fmt.Errorf("redis sequence not configured")
	}
	n, err := s.client.Incr(ctx, sequenceKeyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", key, err)
	}
	return n, nil
}

// MemorySequence is an in-process counter set for development and tests.
type MemorySequence struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemorySequence builds an empty counter set.
func NewMemorySequence() *MemorySequence {
	return &MemorySequence{counters: make(map[string]int64)}
}

// Next increments and returns the counter for key.
func (s *MemorySequence) Next(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

// Seed sets the counter for key, used to resume numbering.
func (s *MemorySequence) Seed(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = value
}
