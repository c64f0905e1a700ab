package xo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
)

// ErrBotStuck means the bot had to move but found no cell on an unfinished board.
var ErrBotStuck = errors.New("bot has no move on an unfinished board")

// Machine applies moves to persisted games. Every accepted mutation is saved
// before the resulting snapshot is returned.
type Machine struct {
	games    store.GameStore
	now      func() time.Time
	attempts int
	logger   *zap.Logger
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRetryAttempts bounds how often a conflicting read-modify-write is replayed.
func WithRetryAttempts(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.attempts = n
		}
	}
}

func NewMachine(games store.GameStore, logger *zap.Logger, opts ...Option) (*Machine, error) {
	if games == nil {
		return nil, fmt.Errorf("game store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		games:    games,
		now:      time.Now,
		attempts: store.DefaultRetryAttempts,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ApplyMove plays pos for g.CurrentTurn and saves the result. A rejected move
// returns a validation error and leaves the store untouched. A stale g yields
// store.ErrConflict.
func (m *Machine) ApplyMove(ctx context.Context, g *domain.Game, pos int) (*domain.Game, error) {
	next, err := Apply(g, pos, m.now())
	if err != nil {
		return nil, err
	}
	saved, err := m.games.Save(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("save game %d: %w", g.ID, err)
	}
	m.logger.Debug("xo_move",
		zap.Int64("game_id", saved.ID),
		zap.String("mark", g.CurrentTurn.String()),
		zap.Int("position", pos),
		zap.String("board", saved.Board.String()),
		zap.String("status", string(saved.Status)),
	)
	return saved, nil
}

// BotMove plays the bot's reply when it is the bot's turn on an unfinished game.
// moved is false when there was nothing to do; g is then returned as is.
func (m *Machine) BotMove(ctx context.Context, g *domain.Game) (*domain.Game, bool, error) {
	if g == nil {
		return nil, false, errNilGame
	}
	if g.Status.Finished() || g.CurrentTurn != domain.Bot {
		return g, false, nil
	}
	pos, ok := ChooseBotCell(g.Board)
	if !ok {
		return g, false, nil
	}
	saved, err := m.ApplyMove(ctx, g, pos)
	if err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

// PlayTurn loads game id, plays the player's mark at pos and lets the bot
// reply. A bot reply left pending by an earlier request is played first, so
// the click is checked against the board the bot has answered. Conflicting
// saves are replayed against a fresh load.
func (m *Machine) PlayTurn(ctx context.Context, id int64, pos int) (*domain.Game, error) {
	var afterPlayer *domain.Game
	err := store.Retry(ctx, m.attempts, func(ctx context.Context) error {
		loaded, err := m.games.LoadByID(ctx, id)
		if err != nil {
			return err
		}
		g, err := m.finishBotReply(ctx, loaded)
		if err != nil {
			return err
		}
		if g != loaded {
			m.logger.Info("xo_bot_reply_resumed",
				zap.Int64("game_id", g.ID),
				zap.String("board", g.Board.String()),
			)
		}
		afterPlayer, err = m.playerMove(ctx, g, pos)
		return err
	})
	if err != nil {
		return nil, err
	}

	current := afterPlayer
	err = store.Retry(ctx, m.attempts, func(ctx context.Context) error {
		// after a conflict the bot may already have replied elsewhere
		if current == nil {
			g, err := m.games.LoadByID(ctx, id)
			if err != nil {
				return err
			}
			current = g
		}
		next, err := m.finishBotReply(ctx, current)
		if err != nil {
			current = nil
			return err
		}
		current = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// finishBotReply plays the bot's move when one is due and returns g otherwise.
func (m *Machine) finishBotReply(ctx context.Context, g *domain.Game) (*domain.Game, error) {
	next, moved, err := m.BotMove(ctx, g)
	if err != nil {
		return nil, err
	}
	if !moved && !next.Status.Finished() && next.CurrentTurn == domain.Bot {
		return nil, ErrBotStuck
	}
	return next, nil
}

// playerMove places the player's mark. It never plays for the bot.
func (m *Machine) playerMove(ctx context.Context, g *domain.Game, pos int) (*domain.Game, error) {
	if g == nil {
		return nil, errNilGame
	}
	if !g.Status.Finished() && g.CurrentTurn != domain.Player {
		return nil, domain.ErrNotPlayersTurn
	}
	return m.ApplyMove(ctx, g, pos)
}

// Restart replaces the conversation's game with a fresh one under a new id.
func (m *Machine) Restart(ctx context.Context, conversationID string) (*domain.Game, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	var fresh *domain.Game
	err := store.Retry(ctx, m.attempts, func(ctx context.Context) error {
		if err := m.games.DeleteByConversation(ctx, conversationID); err != nil {
			return err
		}
		saved, err := m.games.Save(ctx, domain.NewGame(conversationID, m.now()))
		if err != nil {
			return err
		}
		fresh = saved
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("restart game: %w", err)
	}
	m.logger.Info("xo_restart",
		zap.String("conversation_id", conversationID),
		zap.Int64("game_id", fresh.ID),
	)
	return fresh, nil
}

// LoadOrCreate returns the conversation's game, creating one when absent.
func (m *Machine) LoadOrCreate(ctx context.Context, conversationID string) (*domain.Game, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	var game *domain.Game
	err := store.Retry(ctx, m.attempts, func(ctx context.Context) error {
		g, err := m.games.LoadByConversation(ctx, conversationID)
		if err == nil {
			game = g
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		// a concurrent create surfaces as ErrConflict; the retry then loads it
		g, err = m.games.Save(ctx, domain.NewGame(conversationID, m.now()))
		if err != nil {
			return err
		}
		game = g
		m.logger.Info("xo_game_created",
			zap.String("conversation_id", conversationID),
			zap.Int64("game_id", g.ID),
		)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load or create game: %w", err)
	}
	return game, nil
}

// Load returns game id or store.ErrNotFound.
func (m *Machine) Load(ctx context.Context, id int64) (*domain.Game, error) {
	return m.games.LoadByID(ctx, id)
}
