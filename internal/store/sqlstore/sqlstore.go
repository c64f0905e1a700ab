package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
)

// Dialect names a database/sql driver this package knows how to migrate.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Open connects, pings and migrates. dsn is a postgres URL or a sqlite file path.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s dsn is required", dialect)
	}
	if dialect != Postgres && dialect != SQLite {
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	s := &Store{db: db, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Games() store.GameStore   { return gameStore{s} }
func (s *Store) Quotas() store.QuotaStore { return quotaStore{s} }

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == SQLite {
		stmts = sqliteSchema
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS xo_games (
		id BIGSERIAL PRIMARY KEY,
		conversation_id VARCHAR(100) NOT NULL UNIQUE,
		board CHAR(9) NOT NULL DEFAULT '---------',
		current_turn CHAR(1) NOT NULL DEFAULT 'X',
		status VARCHAR(20) NOT NULL DEFAULT 'IN_PROGRESS',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS xo_conversation_quotas (
		conversation_id VARCHAR(255) PRIMARY KEY,
		quota_used INTEGER NOT NULL DEFAULT 0,
		last_reset TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL DEFAULT 1
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS xo_games (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL UNIQUE,
		board TEXT NOT NULL DEFAULT '---------',
		current_turn TEXT NOT NULL DEFAULT 'X',
		status TEXT NOT NULL DEFAULT 'IN_PROGRESS',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS xo_conversation_quotas (
		conversation_id TEXT PRIMARY KEY,
		quota_used INTEGER NOT NULL DEFAULT 0,
		last_reset TIMESTAMP NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
}

type gameStore struct{ s *Store }

const selectGame = `
	SELECT id, conversation_id, board, current_turn, status, created_at, updated_at, version
	FROM xo_games`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var (
		g      domain.Game
		board  string
		turn   string
		status string
	)
	err := row.Scan(&g.ID, &g.ConversationID, &board, &turn, &status, &g.CreatedAt, &g.UpdatedAt, &g.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan game: %w", err)
	}
	if g.Board, err = domain.ParseBoard(strings.TrimSpace(board)); err != nil {
		return nil, fmt.Errorf("game %d: %w", g.ID, err)
	}
	if err := g.CurrentTurn.UnmarshalText([]byte(strings.TrimSpace(turn))); err != nil {
		return nil, fmt.Errorf("game %d: %w", g.ID, err)
	}
	if g.Status, err = domain.ParseStatus(strings.TrimSpace(status)); err != nil {
		return nil, fmt.Errorf("game %d: %w", g.ID, err)
	}
	return &g, nil
}

func (g gameStore) LoadByConversation(ctx context.Context, conversationID string) (*domain.Game, error) {
	row := g.s.db.QueryRowContext(ctx, selectGame+` WHERE conversation_id = $1`, strings.TrimSpace(conversationID))
	return scanGame(row)
}

func (g gameStore) LoadByID(ctx context.Context, id int64) (*domain.Game, error) {
	row := g.s.db.QueryRowContext(ctx, selectGame+` WHERE id = $1`, id)
	return scanGame(row)
}

func (g gameStore) Save(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	if game == nil {
		return nil, fmt.Errorf("nil game payload")
	}
	if game.ID == 0 {
		return g.insert(ctx, game)
	}
	return g.update(ctx, game)
}

func (g gameStore) insert(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	const query = `
		INSERT INTO xo_games (conversation_id, board, current_turn, status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (conversation_id) DO NOTHING
		RETURNING id`

	saved := game.Clone()
	saved.ConversationID = strings.TrimSpace(saved.ConversationID)
	var id sql.NullInt64
	err := g.s.db.QueryRowContext(ctx, query,
		saved.ConversationID,
		saved.Board.String(),
		saved.CurrentTurn.String(),
		string(saved.Status),
		saved.CreatedAt,
		saved.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	saved.ID = id.Int64
	saved.Version = 1
	return saved, nil
}

func (g gameStore) update(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	const query = `
		UPDATE xo_games
		SET board = $1, current_turn = $2, status = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6`

	res, err := g.s.db.ExecContext(ctx, query,
		game.Board.String(),
		game.CurrentTurn.String(),
		string(game.Status),
		game.UpdatedAt,
		game.ID,
		game.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update game: %w", err)
	}
	if n == 0 {
		return nil, store.ErrConflict
	}
	saved := game.Clone()
	saved.Version = game.Version + 1
	return saved, nil
}

func (g gameStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	if _, err := g.s.db.ExecContext(ctx, `DELETE FROM xo_games WHERE conversation_id = $1`, strings.TrimSpace(conversationID)); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

type quotaStore struct{ s *Store }

func (q quotaStore) GetOrCreate(ctx context.Context, conversationID string) (*domain.Quota, error) {
	conversationID = strings.TrimSpace(conversationID)
	const insert = `
		INSERT INTO xo_conversation_quotas (conversation_id, quota_used, last_reset, version)
		VALUES ($1, 0, $2, 1)
		ON CONFLICT (conversation_id) DO NOTHING`
	if _, err := q.s.db.ExecContext(ctx, insert, conversationID, q.s.now()); err != nil {
		return nil, fmt.Errorf("create quota: %w", err)
	}

	const query = `
		SELECT conversation_id, quota_used, last_reset, version
		FROM xo_conversation_quotas
		WHERE conversation_id = $1`
	var quota domain.Quota
	err := q.s.db.QueryRowContext(ctx, query, conversationID).Scan(&quota.ConversationID, &quota.Used, &quota.LastReset, &quota.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select quota: %w", err)
	}
	return &quota, nil
}

func (q quotaStore) Save(ctx context.Context, quota *domain.Quota) (*domain.Quota, error) {
	if quota == nil {
		return nil, fmt.Errorf("nil quota payload")
	}
	const query = `
		UPDATE xo_conversation_quotas
		SET quota_used = $1, last_reset = $2, version = version + 1
		WHERE conversation_id = $3 AND version = $4`
	res, err := q.s.db.ExecContext(ctx, query, quota.Used, quota.LastReset, strings.TrimSpace(quota.ConversationID), quota.Version)
	if err != nil {
		return nil, fmt.Errorf("update quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update quota: %w", err)
	}
	if n == 0 {
		return nil, store.ErrConflict
	}
	saved := *quota
	saved.Version = quota.Version + 1
	return &saved, nil
}
