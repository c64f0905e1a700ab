package domain

import (
	"fmt"
	"strings"
)

// Mark is the content of a single cell.
type Mark byte

const (
	Empty  Mark = '-'
	Player Mark = 'X'
	Bot    Mark = 'O'
)

func (m Mark) String() string { return string(m) }

// Opponent returns the other playing mark. Empty maps to Empty.
func (m Mark) Opponent() Mark {
	switch m {
	case Player:
		return Bot
	case Bot:
		return Player
	default:
		return Empty
	}
}

const BoardSize = 9

// Board is a 3x3 grid stored row-major. The zero value is not a valid board; use NewBoard.
type Board [BoardSize]Mark

// WinningLines lists every row, column and diagonal as index triples.
var WinningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

func NewBoard() Board {
	var b Board
	for i := range b {
		b[i] = Empty
	}
	return b
}

// ParseBoard decodes the 9-character persisted form, e.g. "X---O----".
func ParseBoard(s string) (Board, error) {
	var b Board
	if len(s) != BoardSize {
		return b, fmt.Errorf("board must have %d cells, got %d", BoardSize, len(s))
	}
	for i := 0; i < BoardSize; i++ {
		switch m := Mark(s[i]); m {
		case Empty, Player, Bot:
			b[i] = m
		default:
			return b, fmt.Errorf("invalid cell %q at %d", s[i], i)
		}
	}
	return b, nil
}

func (b Board) String() string {
	var sb strings.Builder
	sb.Grow(BoardSize)
	for _, m := range b {
		sb.WriteByte(byte(m))
	}
	return sb.String()
}

// Place returns a copy of b with pos set to mark.
func (b Board) Place(pos int, mark Mark) (Board, error) {
	if pos < 0 || pos >= BoardSize {
		return b, ErrInvalidPosition
	}
	if b[pos] != Empty {
		return b, ErrCellOccupied
	}
	b[pos] = mark
	return b, nil
}

func (b Board) IsWinner(mark Mark) bool {
	if mark == Empty {
		return false
	}
	for _, line := range WinningLines {
		if b[line[0]] == mark && b[line[1]] == mark && b[line[2]] == mark {
			return true
		}
	}
	return false
}

func (b Board) IsFull() bool {
	for _, m := range b {
		if m == Empty {
			return false
		}
	}
	return true
}

// Count returns how many cells hold mark.
func (b Board) Count(mark Mark) int {
	n := 0
	for _, m := range b {
		if m == mark {
			n++
		}
	}
	return n
}

func (m Mark) MarshalText() ([]byte, error) { return []byte{byte(m)}, nil }

func (m *Mark) UnmarshalText(text []byte) error {
	if len(text) != 1 {
		return fmt.Errorf("invalid mark %q", text)
	}
	switch v := Mark(text[0]); v {
	case Empty, Player, Bot:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid mark %q", text)
	}
}

func (b Board) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Board) UnmarshalText(text []byte) error {
	parsed, err := ParseBoard(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
