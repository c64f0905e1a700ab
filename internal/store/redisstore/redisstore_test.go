package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
	"github.com/park285/xo-kenar-bot/internal/store/storetest"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	s, err := Open(context.Background(), "redis://"+mr.Addr()+"/0", opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisBackend(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		s, _ := newTestStore(t)
		return s
	})
}

func TestOpenRequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestTTLAppliedToDocuments(t *testing.T) {
	s, mr := newTestStore(t, WithTTL(time.Hour))
	ctx := context.Background()
	g, err := s.Games().Save(ctx, domain.NewGame("conv-ttl", time.Now()))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(gameKey(g.ID)); ttl != time.Hour {
		t.Fatalf("expected game ttl 1h, got %v", ttl)
	}
	if ttl := mr.TTL(convKey("conv-ttl")); ttl != time.Hour {
		t.Fatalf("expected index ttl 1h, got %v", ttl)
	}
}

func TestNewDoesNotCloseSharedClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := New(rdb)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("shared client closed by store: %v", err)
	}
}
