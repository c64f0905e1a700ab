package xopresenter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/msgcat"
	"github.com/park285/xo-kenar-bot/internal/xo"
)

const (
	keyInProgress  = "game.status.in_progress"
	keyPlayerWon   = "game.status.player_won"
	keyBotWon      = "game.status.bot_won"
	keyDraw        = "game.status.draw"
	keyOccupied    = "game.reject.occupied"
	keyInvalidPos  = "game.reject.invalid_position"
	keyFinished    = "game.reject.finished"
	keyNotYourTurn = "game.reject.not_your_turn"
	keyNotFound    = "game.not_found"
	keyUsage       = "assistant.usage"
	keyRateLimited = "assistant.rate_limited"
	keyUnavailable = "assistant.unavailable"
)

// Formatter renders user-facing text from the message catalog. Every method
// falls back to a built-in string when the catalog is missing or broken.
type Formatter struct {
	catalog        *msgcat.Catalog
	restartCommand string
	askCommand     string
}

func NewFormatter(catalog *msgcat.Catalog, restartCommand, askCommand string) *Formatter {
	return &Formatter{
		catalog:        catalog,
		restartCommand: strings.TrimSpace(restartCommand),
		askCommand:     strings.TrimSpace(askCommand),
	}
}

func (f *Formatter) data() map[string]any {
	return map[string]any{
		"RestartCommand": f.restartCommand,
		"AskCommand":     f.askCommand,
	}
}

func (f *Formatter) render(key string, data map[string]any, fallback string) string {
	if f == nil || f.catalog == nil {
		return fallback
	}
	out, err := f.catalog.Render(key, data)
	if err != nil || strings.TrimSpace(out) == "" {
		return fallback
	}
	return out
}

// Status is the line shown above the board.
func (f *Formatter) Status(g *domain.Game) string {
	fallback := xo.StatusMessage(g, f.restartCommand)
	if g == nil {
		return fallback
	}
	key := keyInProgress
	switch g.Status {
	case domain.StatusPlayerWon:
		key = keyPlayerWon
	case domain.StatusBotWon:
		key = keyBotWon
	case domain.StatusDraw:
		key = keyDraw
	}
	return f.render(key, f.data(), fallback)
}

// Rejection explains why a move was refused.
func (f *Formatter) Rejection(err error) string {
	switch {
	case errors.Is(err, domain.ErrCellOccupied):
		return f.render(keyOccupied, f.data(), domain.ErrCellOccupied.Error())
	case errors.Is(err, domain.ErrInvalidPosition):
		return f.render(keyInvalidPos, f.data(), domain.ErrInvalidPosition.Error())
	case errors.Is(err, domain.ErrGameFinished):
		return f.render(keyFinished, f.data(), domain.ErrGameFinished.Error())
	case errors.Is(err, domain.ErrNotPlayersTurn):
		return f.render(keyNotYourTurn, f.data(), domain.ErrNotPlayersTurn.Error())
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}

func (f *Formatter) NotFound() string {
	return f.render(keyNotFound, f.data(), "game not found")
}

func (f *Formatter) AssistantUsage() string {
	return f.render(keyUsage, f.data(), fmt.Sprintf("usage: %s <question>", f.askCommand))
}

func (f *Formatter) RateLimited(limit int) string {
	data := f.data()
	data["Limit"] = limit
	return f.render(keyRateLimited, data, "daily assistant limit reached")
}

func (f *Formatter) AssistantUnavailable() string {
	return f.render(keyUnavailable, f.data(), "assistant unavailable")
}
