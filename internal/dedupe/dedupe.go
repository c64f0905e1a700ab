// Package dedupe remembers inbound message ids so redeliveries are handled once.
package dedupe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Set records ids for a bounded time.
type Set interface {
	// FirstSeen records id and reports whether it was not recorded before.
	FirstSeen(ctx context.Context, id string) (bool, error)
	// Forget drops id so a later redelivery is processed again.
	Forget(ctx context.Context, id string) error
}

type RedisSet struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *RedisSet {
	return &RedisSet{rdb: rdb, ttl: ttl, prefix: "xo:dedupe:"}
}

func (s *RedisSet) FirstSeen(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return true, nil
	}
	ok, err := s.rdb.SetNX(ctx, s.prefix+id, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return ok, nil
}

func (s *RedisSet) Forget(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("dedupe del: %w", err)
	}
	return nil
}

// MemorySet is a process-local Set. Expired ids are swept on insert.
type MemorySet struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	seen  map[string]time.Time
	sweep time.Time
}

func NewMemory(ttl time.Duration, now func() time.Time) *MemorySet {
	if now == nil {
		now = time.Now
	}
	return &MemorySet{ttl: ttl, now: now, seen: make(map[string]time.Time)}
}

func (s *MemorySet) FirstSeen(_ context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return true, nil
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.sweep) > s.ttl {
		for k, exp := range s.seen {
			if !now.Before(exp) {
				delete(s.seen, k)
			}
		}
		s.sweep = now
	}
	if exp, ok := s.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[id] = now.Add(s.ttl)
	return true, nil
}

func (s *MemorySet) Forget(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.seen, strings.TrimSpace(id))
	s.mu.Unlock()
	return nil
}
