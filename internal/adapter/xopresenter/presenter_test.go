package xopresenter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/msgcat"
	"github.com/park285/xo-kenar-bot/internal/xo"
)

type captureSender struct {
	conv string
	text string
	grid *xo.ControlGrid
	err  error
}

func (c *captureSender) Send(_ context.Context, conv, text string, grid *xo.ControlGrid) error {
	c.conv, c.text, c.grid = conv, text, grid
	return c.err
}

func newFormatter(t *testing.T) *Formatter {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	return NewFormatter(cat, "/restart", "/ask")
}

func TestFormatterStatus(t *testing.T) {
	f := newFormatter(t)
	g := domain.NewGame("c", time.Now())
	if got := f.Status(g); got != "Your turn! Select a position to play: (you can reset with /restart)" {
		t.Fatalf("in progress: %q", got)
	}
	g.Status = domain.StatusBotWon
	if got := f.Status(g); got != "Game Over - Bot Won! 🤖" {
		t.Fatalf("bot won: %q", got)
	}
}

func TestFormatterFallsBackWithoutCatalog(t *testing.T) {
	f := NewFormatter(nil, "/restart", "/ask")
	g := domain.NewGame("c", time.Now())
	g.Status = domain.StatusDraw
	if got := f.Status(g); got != xo.StatusMessage(g, "/restart") {
		t.Fatalf("fallback: %q", got)
	}
	if got := f.Rejection(domain.ErrCellOccupied); got != "position already taken" {
		t.Fatalf("rejection fallback: %q", got)
	}
}

func TestFormatterRejectionAndLimits(t *testing.T) {
	f := newFormatter(t)
	if got := f.Rejection(domain.ErrGameFinished); !strings.Contains(got, "/restart") {
		t.Fatalf("finished: %q", got)
	}
	if got := f.RateLimited(10); !strings.Contains(got, "10") {
		t.Fatalf("rate limited: %q", got)
	}
	if got := f.AssistantUsage(); !strings.Contains(got, "/ask") {
		t.Fatalf("usage: %q", got)
	}
}

func TestPresenterBoard(t *testing.T) {
	s := &captureSender{}
	p := NewPresenter(s, newFormatter(t))
	g := domain.NewGame("conv-9", time.Now())
	g.ID = 9

	text, err := p.Board(context.Background(), "conv-9", g)
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if s.conv != "conv-9" || s.text != text || s.grid == nil || s.grid.Rows[0][0].Payload.GameID != 9 {
		t.Fatalf("unexpected send %+v", s)
	}

	s.err = errors.New("down")
	if _, err := p.Board(context.Background(), "conv-9", g); err == nil {
		t.Fatalf("expected sender error")
	}
}

func TestPresenterText(t *testing.T) {
	s := &captureSender{}
	p := NewPresenter(s, newFormatter(t))
	if err := p.Text(context.Background(), "c", "   "); err != nil || s.conv != "" {
		t.Fatalf("blank text should be skipped")
	}
	if err := p.Text(context.Background(), "c", "hello"); err != nil || s.grid != nil || s.text != "hello" {
		t.Fatalf("unexpected send %+v err=%v", s, err)
	}
}

func TestFormatterNotYourTurn(t *testing.T) {
	f := newFormatter(t)
	if got := f.Rejection(domain.ErrNotPlayersTurn); got != "Hold on, the bot is still thinking." {
		t.Fatalf("not your turn: %q", got)
	}
}

type fixedStatus string

func (s fixedStatus) Status(*domain.Game) string { return string(s) }

func TestPresenterUsesStatusRenderer(t *testing.T) {
	s := &captureSender{}
	p := NewPresenter(s, fixedStatus("board"))
	text, err := p.Board(context.Background(), "c", domain.NewGame("c", time.Now()))
	if err != nil || text != "board" || s.text != "board" {
		t.Fatalf("unexpected send %+v err=%v", s, err)
	}
	if _, err := NewPresenter(s, nil).Board(context.Background(), "c", domain.NewGame("c", time.Now())); err == nil {
		t.Fatalf("expected error without a status renderer")
	}
}
