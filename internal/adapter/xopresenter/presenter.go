// Package xopresenter turns game snapshots into outbound chat messages.
package xopresenter

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/xo"
)

// Sender is the transport the presenter writes to.
type Sender interface {
	Send(ctx context.Context, conversationID, text string, grid *xo.ControlGrid) error
}

// StatusRenderer produces the line sent above the board. *Formatter is one.
type StatusRenderer interface {
	Status(g *domain.Game) string
}

type Presenter struct {
	sender Sender
	status StatusRenderer
}

func NewPresenter(sender Sender, status StatusRenderer) *Presenter {
	return &Presenter{sender: sender, status: status}
}

// Board sends the status line with the board controls and returns the text sent.
func (p *Presenter) Board(ctx context.Context, conversationID string, g *domain.Game) (string, error) {
	if p == nil || p.sender == nil || p.status == nil {
		return "", errors.New("presenter has no sender")
	}
	text := p.status.Status(g)
	if err := p.sender.Send(ctx, conversationID, text, xo.NewControlGrid(g)); err != nil {
		return text, err
	}
	return text, nil
}

// Text sends a plain message without controls. Blank text is skipped.
func (p *Presenter) Text(ctx context.Context, conversationID, text string) error {
	if p == nil || p.sender == nil {
		return errors.New("presenter has no sender")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return p.sender.Send(ctx, conversationID, text, nil)
}
