package dedupe

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemorySet(t *testing.T) {
	now := time.Date(2024, 11, 27, 9, 0, 0, 0, time.UTC)
	s := NewMemory(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	if first, _ := s.FirstSeen(ctx, "m1"); !first {
		t.Fatalf("first delivery reported as duplicate")
	}
	if first, _ := s.FirstSeen(ctx, "m1"); first {
		t.Fatalf("redelivery not detected")
	}
	now = now.Add(2 * time.Minute)
	if first, _ := s.FirstSeen(ctx, "m1"); !first {
		t.Fatalf("id should expire after ttl")
	}
	_ = s.Forget(ctx, "m1")
	if first, _ := s.FirstSeen(ctx, "m1"); !first {
		t.Fatalf("forgotten id reported as duplicate")
	}
	if first, _ := s.FirstSeen(ctx, ""); !first {
		t.Fatalf("empty ids are never deduplicated")
	}
}

func TestRedisSet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedis(rdb, time.Minute)
	ctx := context.Background()
	first, err := s.FirstSeen(ctx, "m1")
	if err != nil || !first {
		t.Fatalf("first delivery: %v %v", first, err)
	}
	first, err = s.FirstSeen(ctx, "m1")
	if err != nil || first {
		t.Fatalf("redelivery: %v %v", first, err)
	}
	if err := s.Forget(ctx, "m1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if first, _ := s.FirstSeen(ctx, "m1"); !first {
		t.Fatalf("forgotten id reported as duplicate")
	}
	mr.FastForward(2 * time.Minute)
	first, err = s.FirstSeen(ctx, "m1")
	if err != nil || !first {
		t.Fatalf("after ttl: %v %v", first, err)
	}
}
