package xo

import (
	"errors"
	"time"

	"github.com/park285/xo-kenar-bot/internal/domain"
)

var errNilGame = errors.New("nil game")

// fallbackOrder is the bot's preference when nothing wins or blocks:
// centre, corners, then edges.
var fallbackOrder = [domain.BoardSize]int{4, 0, 2, 6, 8, 1, 3, 5, 7}

// Validate reports whether the mover (g.CurrentTurn) may play pos.
func Validate(g *domain.Game, pos int) error {
	if g == nil {
		return errNilGame
	}
	if g.Status.Finished() {
		return domain.ErrGameFinished
	}
	if pos < 0 || pos >= domain.BoardSize {
		return domain.ErrInvalidPosition
	}
	if g.Board[pos] != domain.Empty {
		return domain.ErrCellOccupied
	}
	return nil
}

// Apply plays pos for g.CurrentTurn and returns the resulting game.
// g itself is never modified.
func Apply(g *domain.Game, pos int, now time.Time) (*domain.Game, error) {
	if err := Validate(g, pos); err != nil {
		return nil, err
	}
	mover := g.CurrentTurn
	board, err := g.Board.Place(pos, mover)
	if err != nil {
		return nil, err
	}

	next := g.Clone()
	next.Board = board
	next.UpdatedAt = now
	switch {
	case board.IsWinner(mover):
		next.Status = domain.WonBy(mover)
	case board.IsFull():
		next.Status = domain.StatusDraw
	default:
		next.CurrentTurn = mover.Opponent()
	}
	return next, nil
}

// ChooseBotCell picks the bot's cell: an immediate win, else a block of the
// player's immediate win, else the first empty cell of fallbackOrder.
// ok is false only when the board is full.
func ChooseBotCell(b domain.Board) (pos int, ok bool) {
	if pos, ok := completingCell(b, domain.Bot); ok {
		return pos, true
	}
	if pos, ok := completingCell(b, domain.Player); ok {
		return pos, true
	}
	for _, pos := range fallbackOrder {
		if b[pos] == domain.Empty {
			return pos, true
		}
	}
	return -1, false
}

// completingCell returns the lowest empty cell that gives mark a line.
func completingCell(b domain.Board, mark domain.Mark) (int, bool) {
	for pos := 0; pos < domain.BoardSize; pos++ {
		if b[pos] != domain.Empty {
			continue
		}
		trial, err := b.Place(pos, mark)
		if err != nil {
			continue
		}
		if trial.IsWinner(mark) {
			return pos, true
		}
	}
	return -1, false
}
