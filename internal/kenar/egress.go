package kenar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/xo-kenar-bot/internal/xo"
)

// Egress delivers outbound chat messages.
type Egress interface {
	Send(ctx context.Context, conversationID, text string, grid *xo.ControlGrid) error
}

const (
	ModeHTTP   = "http"
	ModeDryRun = "dryrun"
)

// NewEgress returns the HTTP client for ModeHTTP and a logging stub for ModeDryRun.
func NewEgress(mode string, c *Client, logger *zap.Logger) (Egress, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeDryRun:
		return &dryRunEgress{logger: logger}, nil
	case ModeHTTP, "":
		if c == nil {
			return nil, errors.New("http egress requires a client")
		}
		return &httpEgress{c: c, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown egress mode %q", mode)
	}
}

type httpEgress struct {
	c      *Client
	logger *zap.Logger
}

func (h *httpEgress) Send(ctx context.Context, conversationID, text string, grid *xo.ControlGrid) error {
	if err := h.c.Send(ctx, conversationID, text, grid); err != nil {
		h.logger.Warn("kenar_send_failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return err
	}
	return nil
}

type dryRunEgress struct{ logger *zap.Logger }

func (d *dryRunEgress) Send(_ context.Context, conversationID, text string, grid *xo.ControlGrid) error {
	d.logger.Info("kenar_egress_dryrun",
		zap.String("conversation_id", conversationID),
		zap.String("text", text),
		zap.Bool("grid", grid != nil),
	)
	return nil
}
