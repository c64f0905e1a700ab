package xo

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/xo-kenar-bot/internal/domain"
)

func mustBoard(t *testing.T, s string) domain.Board {
	t.Helper()
	b, err := domain.ParseBoard(s)
	if err != nil {
		t.Fatalf("ParseBoard(%q): %v", s, err)
	}
	return b
}

func gameWith(t *testing.T, board string, turn domain.Mark) *domain.Game {
	t.Helper()
	g := domain.NewGame("conv", time.Unix(0, 0).UTC())
	g.ID = 7
	g.Version = 1
	g.Board = mustBoard(t, board)
	g.CurrentTurn = turn
	return g
}

func TestChooseBotCell(t *testing.T) {
	cases := []struct {
		name  string
		board string
		want  int
	}{
		{"win beats block", "XX-O-O---", 4},
		{"empty board takes centre", "---------", 4},
		{"blocks player line", "XX--O----", 2},
		{"fallback corner", "----X----", 0},
		{"blocks diagonal", "XO--X-OX-", 8},
		{"fallback skips taken cells", "X---O---X", 2},
		{"lowest winning cell first", "OO-OX-X-X", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ChooseBotCell(mustBoard(t, tc.board))
			if !ok {
				t.Fatalf("expected a move on %s", tc.board)
			}
			if got != tc.want {
				t.Fatalf("ChooseBotCell(%s) = %d, want %d", tc.board, got, tc.want)
			}
		})
	}
}

func TestChooseBotCellFullBoard(t *testing.T) {
	if _, ok := ChooseBotCell(mustBoard(t, "XOXXOOOXX")); ok {
		t.Fatalf("expected no move on a full board")
	}
}

func TestValidate(t *testing.T) {
	g := gameWith(t, "X---O----", domain.Player)
	if err := Validate(g, 0); !errors.Is(err, domain.ErrCellOccupied) {
		t.Fatalf("occupied: got %v", err)
	}
	for _, pos := range []int{-1, 9, 42} {
		if err := Validate(g, pos); !errors.Is(err, domain.ErrInvalidPosition) {
			t.Fatalf("pos %d: got %v", pos, err)
		}
	}
	if err := Validate(g, 8); err != nil {
		t.Fatalf("legal move rejected: %v", err)
	}
	g.Status = domain.StatusBotWon
	if err := Validate(g, 8); !errors.Is(err, domain.ErrGameFinished) {
		t.Fatalf("finished: got %v", err)
	}
}

func TestApplyTransitions(t *testing.T) {
	now := time.Date(2024, 11, 27, 13, 21, 0, 0, time.UTC)

	t.Run("flip turn", func(t *testing.T) {
		g := gameWith(t, "---------", domain.Player)
		next, err := Apply(g, 0, now)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if next.Board.String() != "X--------" || next.CurrentTurn != domain.Bot || next.Status != domain.StatusInProgress {
			t.Fatalf("unexpected game: %s turn=%s status=%s", next.Board, next.CurrentTurn, next.Status)
		}
		if !next.UpdatedAt.Equal(now) {
			t.Fatalf("updated_at not bumped")
		}
		if g.Board.String() != "---------" {
			t.Fatalf("input game mutated: %s", g.Board)
		}
	})

	t.Run("win keeps turn", func(t *testing.T) {
		g := gameWith(t, "XX-OO----", domain.Player)
		next, err := Apply(g, 2, now)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if next.Status != domain.StatusPlayerWon || next.CurrentTurn != domain.Player {
			t.Fatalf("expected X_WON with X turn, got %s/%s", next.Status, next.CurrentTurn)
		}
	})

	t.Run("draw on last cell", func(t *testing.T) {
		g := gameWith(t, "XOXXOOOX-", domain.Player)
		next, err := Apply(g, 8, now)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if next.Status != domain.StatusDraw {
			t.Fatalf("expected DRAW, got %s", next.Status)
		}
	})

	t.Run("exactly one cell changes", func(t *testing.T) {
		g := gameWith(t, "X---O----", domain.Player)
		next, err := Apply(g, 8, now)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		diff := 0
		for i := range g.Board {
			if g.Board[i] != next.Board[i] {
				diff++
			}
		}
		if diff != 1 {
			t.Fatalf("expected one changed cell, got %d", diff)
		}
	})
}
