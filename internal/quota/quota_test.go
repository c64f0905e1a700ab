package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store/memstore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, limit int) (*Limiter, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 11, 27, 9, 0, 0, 0, time.UTC)}
	backend := memstore.New(memstore.WithClock(c.Now))
	l, err := NewLimiter(backend.Quotas(), limit, nil, WithClock(c.Now))
	require.NoError(t, err)
	return l, c
}

func TestRemainingPure(t *testing.T) {
	now := time.Date(2024, 11, 27, 9, 0, 0, 0, time.UTC)
	q := &domain.Quota{Used: 3, LastReset: now.Add(-time.Hour)}
	require.Equal(t, 7, Remaining(q, 10, now))

	q.Used = 12
	require.Equal(t, 0, Remaining(q, 10, now))

	q.LastReset = now.Add(-25 * time.Hour)
	require.Equal(t, 10, Remaining(q, 10, now))

	// exactly 24h is still the same window
	q.LastReset = now.Add(-Window)
	require.Equal(t, 0, Remaining(q, 10, now))
}

func TestIncrementPure(t *testing.T) {
	now := time.Date(2024, 11, 27, 9, 0, 0, 0, time.UTC)
	q := domain.Quota{Used: 4, LastReset: now.Add(-time.Hour)}
	next := Increment(q, now)
	require.Equal(t, 5, next.Used)
	require.Equal(t, q.LastReset, next.LastReset)

	q.LastReset = now.Add(-48 * time.Hour)
	next = Increment(q, now)
	require.Equal(t, 1, next.Used)
	require.Equal(t, now, next.LastReset)
}

func TestCheckAndIncrementUntilExhausted(t *testing.T) {
	l, _ := newLimiter(t, 3)
	ctx := context.Background()

	for want := 3; want >= 1; want-- {
		got, err := l.CheckAndIncrement(ctx, "conv")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	got, err := l.CheckAndIncrement(ctx, "conv")
	require.NoError(t, err)
	require.Zero(t, got)

	left, err := l.Remaining(ctx, "conv")
	require.NoError(t, err)
	require.Zero(t, left)
}

func TestQuotaRollover(t *testing.T) {
	l, c := newLimiter(t, 10)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := l.CheckAndIncrement(ctx, "conv")
		require.NoError(t, err)
	}
	left, err := l.Remaining(ctx, "conv")
	require.NoError(t, err)
	require.Zero(t, left)

	c.Advance(25 * time.Hour)
	left, err = l.Remaining(ctx, "conv")
	require.NoError(t, err)
	require.Equal(t, 10, left)

	got, err := l.CheckAndIncrement(ctx, "conv")
	require.NoError(t, err)
	require.Equal(t, 10, got)
	left, err = l.Remaining(ctx, "conv")
	require.NoError(t, err)
	require.Equal(t, 9, left)
}

func TestConversationsAreIndependent(t *testing.T) {
	l, _ := newLimiter(t, 1)
	ctx := context.Background()
	got, err := l.CheckAndIncrement(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, got)
	got, err = l.CheckAndIncrement(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 1, got)
}

func TestConcurrentConsumersNeverOverspend(t *testing.T) {
	l, _ := newLimiter(t, 5)
	l.attempts = 50
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.CheckAndIncrement(ctx, "conv")
			if err != nil || got == 0 {
				return
			}
			mu.Lock()
			granted++
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, granted, 5)
}

func TestNewLimiterDefaults(t *testing.T) {
	_, err := NewLimiter(nil, 10, nil)
	require.Error(t, err)

	l, err := NewLimiter(memstore.New().Quotas(), 0, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultDailyLimit, l.DailyLimit())
}
