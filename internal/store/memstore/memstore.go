package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
)

// Store is an in-process backend for development and tests. It keeps the same
// versioning contract as the durable backends.
type Store struct {
	mu sync.RWMutex

	nextID int64

	gamesByID   map[int64]*domain.Game
	gamesByConv map[string]int64

	quotas map[string]*domain.Quota

	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used when creating quota records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		gamesByID:   make(map[int64]*domain.Game),
		gamesByConv: make(map[string]int64),
		quotas:      make(map[string]*domain.Quota),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Games() store.GameStore   { return gameStore{s} }
func (s *Store) Quotas() store.QuotaStore { return quotaStore{s} }
func (s *Store) Close() error             { return nil }

type gameStore struct{ s *Store }

func (g gameStore) LoadByConversation(ctx context.Context, conversationID string) (*domain.Game, error) {
	s := g.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.gamesByConv[key(conversationID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.gamesByID[id].Clone(), nil
}

func (g gameStore) LoadByID(ctx context.Context, id int64) (*domain.Game, error) {
	s := g.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.gamesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return game.Clone(), nil
}

func (g gameStore) Save(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	if game == nil {
		return nil, store.ErrNotFound
	}
	s := g.s
	k := key(game.ConversationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if game.ID == 0 {
		if _, exists := s.gamesByConv[k]; exists {
			return nil, store.ErrConflict
		}
		s.nextID++
		saved := game.Clone()
		saved.ID = s.nextID
		saved.Version = 1
		s.gamesByID[saved.ID] = saved
		s.gamesByConv[k] = saved.ID
		return saved.Clone(), nil
	}

	cur, ok := s.gamesByID[game.ID]
	if !ok {
		return nil, store.ErrConflict
	}
	if cur.Version != game.Version {
		return nil, store.ErrConflict
	}
	saved := game.Clone()
	saved.Version = cur.Version + 1
	s.gamesByID[saved.ID] = saved
	return saved.Clone(), nil
}

func (g gameStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	s := g.s
	k := key(conversationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.gamesByConv[k]; ok {
		delete(s.gamesByID, id)
		delete(s.gamesByConv, k)
	}
	return nil
}

type quotaStore struct{ s *Store }

func (q quotaStore) GetOrCreate(ctx context.Context, conversationID string) (*domain.Quota, error) {
	s := q.s
	k := key(conversationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.quotas[k]; ok {
		c := *cur
		return &c, nil
	}
	created := &domain.Quota{ConversationID: conversationID, LastReset: s.now(), Version: 1}
	s.quotas[k] = created
	c := *created
	return &c, nil
}

func (q quotaStore) Save(ctx context.Context, quota *domain.Quota) (*domain.Quota, error) {
	if quota == nil {
		return nil, store.ErrNotFound
	}
	s := q.s
	k := key(quota.ConversationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.quotas[k]
	if ok && cur.Version != quota.Version {
		return nil, store.ErrConflict
	}
	if !ok && quota.Version != 0 {
		return nil, store.ErrConflict
	}
	saved := *quota
	saved.Version = quota.Version + 1
	s.quotas[k] = &saved
	c := saved
	return &c, nil
}

func key(conversationID string) string { return strings.TrimSpace(conversationID) }
