package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
)

// Store keeps games and quotas as JSON documents in Redis. Updates run under
// WATCH so a concurrent writer aborts the transaction instead of overwriting.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
	owned  bool
}

type Option func(*Store)

// WithTTL expires game and quota documents after d of inactivity. Zero keeps them forever.
func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to redisURL (redis:// or rediss://) and pings it.
func Open(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required for the redis store")
	}
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := New(rdb, opts...)
	s.owned = true
	return s, nil
}

func (s *Store) Client() *redis.Client    { return s.rdb }
func (s *Store) Games() store.GameStore   { return gameStore{s} }
func (s *Store) Quotas() store.QuotaStore { return quotaStore{s} }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil || !s.owned {
		return nil
	}
	return s.rdb.Close()
}

func gameKey(id int64) string { return "xo:game:" + strconv.FormatInt(id, 10) }
func convKey(conversationID string) string {
	return "xo:game:conv:" + strings.TrimSpace(conversationID)
}
func seqKey() string { return "xo:game:seq" }
func quotaKey(conversationID string) string {
	return "xo:quota:" + strings.TrimSpace(conversationID)
}

type gameStore struct{ s *Store }

func (g gameStore) LoadByConversation(ctx context.Context, conversationID string) (*domain.Game, error) {
	id, err := g.s.rdb.Get(ctx, convKey(conversationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game index: %w", err)
	}
	return g.LoadByID(ctx, id)
}

func (g gameStore) LoadByID(ctx context.Context, id int64) (*domain.Game, error) {
	return readGame(ctx, g.s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGame(ctx context.Context, c getter, id int64) (*domain.Game, error) {
	raw, err := c.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	var game domain.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return nil, fmt.Errorf("decode game %d: %w", id, err)
	}
	return &game, nil
}

func (g gameStore) Save(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	if game == nil {
		return nil, fmt.Errorf("cannot save nil game")
	}
	if game.ID == 0 {
		return g.insert(ctx, game)
	}
	return g.update(ctx, game)
}

func (g gameStore) insert(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	s := g.s
	id, err := s.rdb.Incr(ctx, seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate game id: %w", err)
	}
	saved := game.Clone()
	saved.ID = id
	saved.Version = 1
	raw, err := json.Marshal(saved)
	if err != nil {
		return nil, err
	}

	ck := convKey(game.ConversationID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, ck).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrConflict
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, gameKey(id), raw, s.ttl)
		pipe.Set(ctx, ck, id, s.ttl)
		_, err = pipe.Exec(ctx)
		return err
	}, ck)
	if err != nil {
		return nil, mapTxErr(err)
	}
	return saved, nil
}

func (g gameStore) update(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	s := g.s
	gk := gameKey(game.ID)
	var saved *domain.Game
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGame(ctx, tx, game.ID)
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrConflict
		}
		if err != nil {
			return err
		}
		if cur.Version != game.Version {
			return store.ErrConflict
		}
		next := game.Clone()
		next.Version = cur.Version + 1
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, gk, raw, s.ttl)
		if s.ttl > 0 {
			pipe.Expire(ctx, convKey(next.ConversationID), s.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		saved = next
		return nil
	}, gk)
	if err != nil {
		return nil, mapTxErr(err)
	}
	return saved, nil
}

func (g gameStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	s := g.s
	ck := convKey(conversationID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		id, err := tx.Get(ctx, ck).Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Del(ctx, ck, gameKey(id))
		_, err = pipe.Exec(ctx)
		return err
	}, ck)
	if err != nil {
		return mapTxErr(err)
	}
	s.logger.Debug("redis_game_delete", zap.String("conversation_id", conversationID))
	return nil
}

type quotaStore struct{ s *Store }

func (q quotaStore) GetOrCreate(ctx context.Context, conversationID string) (*domain.Quota, error) {
	s := q.s
	k := quotaKey(conversationID)
	fresh := &domain.Quota{ConversationID: conversationID, LastReset: s.now(), Version: 1}
	raw, err := json.Marshal(fresh)
	if err != nil {
		return nil, err
	}
	// only set if key doesn't exist
	if _, err := s.rdb.SetNX(ctx, k, raw, s.ttl).Result(); err != nil {
		return nil, fmt.Errorf("create quota: %w", err)
	}
	return readQuota(ctx, s.rdb, k)
}

func readQuota(ctx context.Context, c getter, k string) (*domain.Quota, error) {
	raw, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load quota: %w", err)
	}
	var quota domain.Quota
	if err := json.Unmarshal(raw, &quota); err != nil {
		return nil, fmt.Errorf("decode quota: %w", err)
	}
	return &quota, nil
}

func (q quotaStore) Save(ctx context.Context, quota *domain.Quota) (*domain.Quota, error) {
	if quota == nil {
		return nil, fmt.Errorf("cannot save nil quota")
	}
	s := q.s
	k := quotaKey(quota.ConversationID)
	var saved *domain.Quota
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readQuota(ctx, tx, k)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if quota.Version != 0 {
				return store.ErrConflict
			}
		case err != nil:
			return err
		case cur.Version != quota.Version:
			return store.ErrConflict
		}
		next := *quota
		next.Version = quota.Version + 1
		raw, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, k, raw, s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		saved = &next
		return nil
	}, k)
	if err != nil {
		return nil, mapTxErr(err)
	}
	return saved, nil
}

func mapTxErr(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrConflict
	}
	return err
}
