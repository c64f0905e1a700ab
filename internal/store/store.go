// Package store defines the persistence contracts for games and quotas.
//
// Every Save is a compare-and-swap on Version: a record whose stored version
// differs from the one being saved is rejected with ErrConflict, as is an
// insert for a conversation that already has a game. Callers serialize
// read-modify-write cycles per key by retrying on ErrConflict (see Retry).
package store

import (
	"context"
	"errors"

	"github.com/park285/xo-kenar-bot/internal/domain"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("concurrent update detected")
)

type GameStore interface {
	LoadByConversation(ctx context.Context, conversationID string) (*domain.Game, error)
	LoadByID(ctx context.Context, id int64) (*domain.Game, error)
	// Save inserts when g.ID is zero (assigning the id) and updates otherwise.
	// The returned game carries the new Version.
	Save(ctx context.Context, g *domain.Game) (*domain.Game, error)
	DeleteByConversation(ctx context.Context, conversationID string) error
}

type QuotaStore interface {
	// GetOrCreate returns the quota for the conversation, creating a zero-usage
	// record (LastReset = now) when none exists.
	GetOrCreate(ctx context.Context, conversationID string) (*domain.Quota, error)
	Save(ctx context.Context, q *domain.Quota) (*domain.Quota, error)
}

// Backend bundles both stores with the resources they share.
type Backend interface {
	Games() GameStore
	Quotas() QuotaStore
	Close() error
}
