package xo

import (
	"fmt"

	"github.com/park285/xo-kenar-bot/internal/domain"
)

const ActionMove = "move"

// Cell glyphs shown on control captions.
const (
	GlyphPlayer = "❌"
	GlyphBot    = "⭕"
	GlyphEmpty  = "➖"
)

func Glyph(m domain.Mark) string {
	switch m {
	case domain.Player:
		return GlyphPlayer
	case domain.Bot:
		return GlyphBot
	default:
		return GlyphEmpty
	}
}

// Payload is echoed back by the platform when a control is pressed.
type Payload struct {
	GameID   int64  `json:"game_id"`
	Position int    `json:"position"`
	Action   string `json:"action"`
	Disabled bool   `json:"disabled"`
}

type Control struct {
	Caption string
	Payload Payload
}

// ControlGrid is a transport-neutral 3x3 button layout in row-major order.
type ControlGrid struct {
	Rows [3][3]Control
}

// NewControlGrid lays out one control per cell. Occupied cells are disabled.
func NewControlGrid(g *domain.Game) *ControlGrid {
	if g == nil {
		return nil
	}
	grid := &ControlGrid{}
	for pos, mark := range g.Board {
		grid.Rows[pos/3][pos%3] = Control{
			Caption: Glyph(mark),
			Payload: Payload{
				GameID:   g.ID,
				Position: pos,
				Action:   ActionMove,
				Disabled: mark != domain.Empty,
			},
		}
	}
	return grid
}

// Controls returns the grid flattened to board order.
func (c *ControlGrid) Controls() []Control {
	if c == nil {
		return nil
	}
	out := make([]Control, 0, domain.BoardSize)
	for _, row := range c.Rows {
		out = append(out, row[:]...)
	}
	return out
}

// Default status texts, used when no message catalog overrides them.
const (
	defaultInProgress = "Your turn! Select a position to play: (you can reset with %s)"
	defaultPlayerWon  = "Game Over - You Won! 🎉"
	defaultBotWon     = "Game Over - Bot Won! 🤖"
	defaultDraw       = "Game Over - It's a Draw! 🤝"
)

// StatusMessage renders the built-in status line for g.
func StatusMessage(g *domain.Game, restartCommand string) string {
	if g == nil {
		return ""
	}
	switch g.Status {
	case domain.StatusPlayerWon:
		return defaultPlayerWon
	case domain.StatusBotWon:
		return defaultBotWon
	case domain.StatusDraw:
		return defaultDraw
	default:
		return fmt.Sprintf(defaultInProgress, restartCommand)
	}
}
