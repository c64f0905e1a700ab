// Package storetest holds the behaviour every store.Backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
)

// Run exercises b with the full backend contract. newBackend must return an
// empty backend on each call.
func Run(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	t.Helper()
	t.Run("SaveAssignsIDAndVersion", func(t *testing.T) { testSaveAssignsID(t, newBackend(t)) })
	t.Run("LoadByConversationAndID", func(t *testing.T) { testLoad(t, newBackend(t)) })
	t.Run("StaleVersionConflicts", func(t *testing.T) { testStaleVersion(t, newBackend(t)) })
	t.Run("DuplicateConversationConflicts", func(t *testing.T) { testDuplicateConversation(t, newBackend(t)) })
	t.Run("DeleteByConversation", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("QuotaGetOrCreateAndSave", func(t *testing.T) { testQuota(t, newBackend(t)) })
}

func fixedNow() time.Time { return time.Date(2024, 11, 27, 13, 21, 0, 0, time.UTC) }

func testSaveAssignsID(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	g, err := b.Games().Save(ctx, domain.NewGame("conv-1", fixedNow()))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if g.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}
	if g.Version != 1 {
		t.Fatalf("expected version 1, got %d", g.Version)
	}
	g2, err := b.Games().Save(ctx, domain.NewGame("conv-2", fixedNow()))
	if err != nil {
		t.Fatalf("Save second: %v", err)
	}
	if g2.ID == g.ID {
		t.Fatalf("expected distinct ids, both %d", g.ID)
	}
}

func testLoad(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	g := domain.NewGame("conv-load", fixedNow())
	g.Board, _ = domain.ParseBoard("X---O----")
	saved, err := b.Games().Save(ctx, g)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	byConv, err := b.Games().LoadByConversation(ctx, "conv-load")
	if err != nil {
		t.Fatalf("LoadByConversation: %v", err)
	}
	byID, err := b.Games().LoadByID(ctx, saved.ID)
	if err != nil {
		t.Fatalf("LoadByID: %v", err)
	}
	for _, got := range []*domain.Game{byConv, byID} {
		if got.ID != saved.ID || got.Board.String() != "X---O----" || got.CurrentTurn != domain.Player || got.Status != domain.StatusInProgress {
			t.Fatalf("unexpected game: %+v", got)
		}
		if got.Version != saved.Version {
			t.Fatalf("version mismatch: %d vs %d", got.Version, saved.Version)
		}
	}

	if _, err := b.Games().LoadByConversation(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := b.Games().LoadByID(ctx, saved.ID+1000); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testStaleVersion(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	saved, err := b.Games().Save(ctx, domain.NewGame("conv-cas", fixedNow()))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	first := saved.Clone()
	first.Board[0] = domain.Player
	first.CurrentTurn = domain.Bot
	updated, err := b.Games().Save(ctx, first)
	if err != nil {
		t.Fatalf("Save update: %v", err)
	}
	if updated.Version != saved.Version+1 {
		t.Fatalf("expected version %d, got %d", saved.Version+1, updated.Version)
	}

	stale := saved.Clone()
	stale.Board[8] = domain.Player
	if _, err := b.Games().Save(ctx, stale); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}
	cur, err := b.Games().LoadByID(ctx, saved.ID)
	if err != nil {
		t.Fatalf("LoadByID: %v", err)
	}
	if cur.Board.String() != "X--------" {
		t.Fatalf("stale save leaked: %s", cur.Board)
	}
}

func testDuplicateConversation(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	if _, err := b.Games().Save(ctx, domain.NewGame("conv-dup", fixedNow())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := b.Games().Save(ctx, domain.NewGame("conv-dup", fixedNow())); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate conversation, got %v", err)
	}
}

func testDelete(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	saved, err := b.Games().Save(ctx, domain.NewGame("conv-del", fixedNow()))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.Games().DeleteByConversation(ctx, "conv-del"); err != nil {
		t.Fatalf("DeleteByConversation: %v", err)
	}
	if _, err := b.Games().LoadByID(ctx, saved.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := b.Games().LoadByConversation(ctx, "conv-del"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting nothing is fine
	if err := b.Games().DeleteByConversation(ctx, "conv-del"); err != nil {
		t.Fatalf("DeleteByConversation twice: %v", err)
	}
	again, err := b.Games().Save(ctx, domain.NewGame("conv-del", fixedNow()))
	if err != nil {
		t.Fatalf("Save after delete: %v", err)
	}
	if again.ID == saved.ID {
		t.Fatalf("expected a fresh id after delete, got %d again", again.ID)
	}
}

func testQuota(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	q, err := b.Quotas().GetOrCreate(ctx, "conv-q")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if q.Used != 0 || q.LastReset.IsZero() {
		t.Fatalf("unexpected fresh quota: %+v", q)
	}
	q.Used = 3
	saved, err := b.Quotas().Save(ctx, q)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Version != q.Version+1 {
		t.Fatalf("expected version bump, got %d -> %d", q.Version, saved.Version)
	}
	again, err := b.Quotas().GetOrCreate(ctx, "conv-q")
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if again.Used != 3 || again.Version != saved.Version {
		t.Fatalf("unexpected reloaded quota: %+v", again)
	}
	// q still carries the old version
	q.Used = 9
	if _, err := b.Quotas().Save(ctx, q); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale quota, got %v", err)
	}
}
