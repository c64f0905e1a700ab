// Package quota gates the assistant command with a per-conversation daily counter.
package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
)

const (
	DefaultDailyLimit = 10
	Window            = 24 * time.Hour
)

// Remaining is the number of uses left at now. A window older than 24h counts as fresh.
func Remaining(q *domain.Quota, limit int, now time.Time) int {
	if q == nil || now.Sub(q.LastReset) > Window {
		return limit
	}
	if left := limit - q.Used; left > 0 {
		return left
	}
	return 0
}

// Increment returns q after one more use, opening a new window when the old one elapsed.
func Increment(q domain.Quota, now time.Time) domain.Quota {
	if now.Sub(q.LastReset) > Window {
		q.Used = 1
		q.LastReset = now
		return q
	}
	q.Used++
	return q
}

type Limiter struct {
	quotas   store.QuotaStore
	limit    int
	now      func() time.Time
	attempts int
	logger   *zap.Logger
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithRetryAttempts(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.attempts = n
		}
	}
}

func NewLimiter(quotas store.QuotaStore, dailyLimit int, logger *zap.Logger, opts ...Option) (*Limiter, error) {
	if quotas == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		quotas:   quotas,
		limit:    dailyLimit,
		now:      time.Now,
		attempts: store.DefaultRetryAttempts,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) DailyLimit() int { return l.limit }

// CheckAndIncrement consumes one use when any is left and returns the
// remaining count observed before consuming. Zero means the caller is
// rate limited and nothing was recorded.
func (l *Limiter) CheckAndIncrement(ctx context.Context, conversationID string) (int, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return 0, fmt.Errorf("conversation id is required")
	}
	var before int
	err := store.Retry(ctx, l.attempts, func(ctx context.Context) error {
		q, err := l.quotas.GetOrCreate(ctx, conversationID)
		if err != nil {
			return err
		}
		now := l.now()
		before = Remaining(q, l.limit, now)
		if before == 0 {
			return nil
		}
		next := Increment(*q, now)
		_, err = l.quotas.Save(ctx, &next)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("consume quota: %w", err)
	}
	if before == 0 {
		l.logger.Info("quota_exhausted", zap.String("conversation_id", conversationID), zap.Int("limit", l.limit))
	}
	return before, nil
}

// Remaining reports the uses left without consuming one.
func (l *Limiter) Remaining(ctx context.Context, conversationID string) (int, error) {
	q, err := l.quotas.GetOrCreate(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return 0, fmt.Errorf("load quota: %w", err)
	}
	return Remaining(q, l.limit, l.now()), nil
}
