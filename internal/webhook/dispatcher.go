// Package webhook turns inbound chat events into game actions and outbound messages.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/xo-kenar-bot/internal/adapter/xopresenter"
	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
	"github.com/park285/xo-kenar-bot/internal/util"
	"github.com/park285/xo-kenar-bot/internal/xo"
)

const maxAssistantReplyRunes = 4000

// Notifier delivers a message to a conversation. A nil grid means plain text.
type Notifier interface {
	Send(ctx context.Context, conversationID, text string, grid *xo.ControlGrid) error
}

type Assistant interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

type QuotaGate interface {
	Remaining(ctx context.Context, conversationID string) (int, error)
	CheckAndIncrement(ctx context.Context, conversationID string) (int, error)
	DailyLimit() int
}

// Renderer produces every user-facing string.
type Renderer interface {
	Status(g *domain.Game) string
	Rejection(err error) string
	NotFound() string
	AssistantUsage() string
	RateLimited(limit int) string
	AssistantUnavailable() string
}

type Dispatcher struct {
	machine   *xo.Machine
	quota     QuotaGate
	out       *xopresenter.Presenter
	assistant Assistant
	render    Renderer
	commands  Commands
	logger    *zap.Logger
}

type Deps struct {
	Machine  *xo.Machine
	Quota    QuotaGate
	Notifier Notifier
	// Assistant may be nil; the ask command then answers with AssistantUnavailable.
	Assistant Assistant
	Renderer  Renderer
	Commands  Commands
	Logger    *zap.Logger
}

func NewDispatcher(d Deps) (*Dispatcher, error) {
	if d.Machine == nil {
		return nil, fmt.Errorf("game machine is required")
	}
	if d.Quota == nil {
		return nil, fmt.Errorf("quota gate is required")
	}
	if d.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if d.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	cmds := d.Commands
	if strings.TrimSpace(cmds.Restart) == "" || strings.TrimSpace(cmds.Ask) == "" {
		cmds = DefaultCommands()
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		machine:   d.Machine,
		quota:     d.Quota,
		out:       xopresenter.NewPresenter(d.Notifier, d.Renderer),
		assistant: d.Assistant,
		render:    d.Renderer,
		commands:  cmds,
		logger:    logger,
	}, nil
}

// HandleChatMessage reacts to a free-text message in a conversation.
func (d *Dispatcher) HandleChatMessage(ctx context.Context, conversationID, text string) Result {
	conversationID = strings.TrimSpace(conversationID)
	cmd, arg := d.commands.Parse(text)
	logger := d.logger.With(zap.String("conversation_id", conversationID))
	logger.Debug("webhook_chat", zap.Int("command", int(cmd)), zap.String("text", util.TruncateRunes(text, 64)))

	switch cmd {
	case CommandRestart:
		g, err := d.machine.Restart(ctx, conversationID)
		if err != nil {
			return d.failed(logger, ReasonStore, "", err)
		}
		return d.sendBoard(ctx, logger, conversationID, g)
	case CommandAskAssistant:
		return d.ask(ctx, logger, conversationID, arg)
	default:
		g, err := d.machine.LoadOrCreate(ctx, conversationID)
		if err != nil {
			return d.failed(logger, ReasonStore, "", err)
		}
		return d.sendBoard(ctx, logger, conversationID, g)
	}
}

func (d *Dispatcher) ask(ctx context.Context, logger *zap.Logger, conversationID, question string) Result {
	left, err := d.quota.Remaining(ctx, conversationID)
	if err != nil {
		return d.failed(logger, ReasonQuota, "", err)
	}
	if left == 0 {
		return d.rateLimited(ctx, logger, conversationID)
	}
	if question == "" {
		usage := d.render.AssistantUsage()
		d.notifyBestEffort(ctx, logger, conversationID, usage)
		return Result{Kind: KindRejected, Message: usage, Reason: ReasonEmptyQuestion}
	}
	if d.assistant == nil {
		msg := d.render.AssistantUnavailable()
		d.notifyBestEffort(ctx, logger, conversationID, msg)
		return Result{Kind: KindFailed, Message: msg, Reason: ReasonAssistant, Err: errors.New("assistant not configured")}
	}

	before, err := d.quota.CheckAndIncrement(ctx, conversationID)
	if err != nil {
		return d.failed(logger, ReasonQuota, "", err)
	}
	if before == 0 {
		return d.rateLimited(ctx, logger, conversationID)
	}

	reply, err := d.assistant.Ask(ctx, question)
	if err != nil {
		msg := d.render.AssistantUnavailable()
		d.notifyBestEffort(ctx, logger, conversationID, msg)
		return d.failed(logger, ReasonAssistant, msg, fmt.Errorf("ask assistant: %w", err))
	}
	reply = util.TruncateRunes(reply, maxAssistantReplyRunes)
	if err := d.out.Text(ctx, conversationID, reply); err != nil {
		return d.failed(logger, ReasonNotify, reply, fmt.Errorf("notify: %w", err))
	}
	logger.Info("webhook_assistant_reply", zap.Int("remaining", before-1))
	return Result{Kind: KindOK, Message: reply}
}

func (d *Dispatcher) rateLimited(ctx context.Context, logger *zap.Logger, conversationID string) Result {
	msg := d.render.RateLimited(d.quota.DailyLimit())
	d.notifyBestEffort(ctx, logger, conversationID, msg)
	logger.Info("webhook_rate_limited")
	return Result{Kind: KindRateLimited, Message: msg, Reason: ReasonQuotaExhausted}
}

// HandleCallback applies a board button press: the player's move followed by the bot's reply.
// Rejected moves are not notified; the caller's client keeps showing the old board.
func (d *Dispatcher) HandleCallback(ctx context.Context, gameID int64, position int) Result {
	logger := d.logger.With(zap.Int64("game_id", gameID), zap.Int("position", position))

	g, err := d.machine.Load(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Kind: KindNotFound, Message: d.render.NotFound(), Reason: ReasonGameNotFound, GameID: gameID, Err: err}
	}
	if err != nil {
		return d.failed(logger, ReasonStore, "", err)
	}

	if !g.Status.Finished() {
		after, err := d.machine.PlayTurn(ctx, gameID, position)
		switch {
		case err == nil:
			g = after
		case domain.IsValidationError(err):
			logger.Info("webhook_move_rejected", zap.Error(err))
			return Result{Kind: KindRejected, Message: d.render.Rejection(err), Reason: rejectionReason(err), GameID: gameID, Err: err}
		case errors.Is(err, store.ErrNotFound):
			return Result{Kind: KindNotFound, Message: d.render.NotFound(), Reason: ReasonGameNotFound, GameID: gameID, Err: err}
		case errors.Is(err, xo.ErrBotStuck):
			logger.Error("webhook_bot_stuck", zap.Error(err))
			return Result{Kind: KindInternalInconsistency, Reason: ReasonBotStuck, GameID: gameID, Err: err}
		default:
			return d.failed(logger, ReasonStore, "", err)
		}
	}

	res := d.sendBoard(ctx, logger, g.ConversationID, g)
	res.GameID = g.ID
	return res
}

func (d *Dispatcher) sendBoard(ctx context.Context, logger *zap.Logger, conversationID string, g *domain.Game) Result {
	text, err := d.out.Board(ctx, conversationID, g)
	if err != nil {
		res := d.failed(logger, ReasonNotify, text, fmt.Errorf("notify: %w", err))
		res.GameID = g.ID
		return res
	}
	return Result{Kind: KindOK, Message: text, GameID: g.ID}
}

func (d *Dispatcher) notifyBestEffort(ctx context.Context, logger *zap.Logger, conversationID, text string) {
	if err := d.out.Text(ctx, conversationID, text); err != nil {
		logger.Warn("webhook_notify_failed", zap.Error(err))
	}
}

func (d *Dispatcher) failed(logger *zap.Logger, reason, message string, err error) Result {
	logger.Error("webhook_failed", zap.String("reason", reason), zap.Error(err))
	return Result{Kind: KindFailed, Message: message, Reason: reason, Err: err}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCellOccupied):
		return ReasonCellOccupied
	case errors.Is(err, domain.ErrInvalidPosition):
		return ReasonInvalidPosition
	case errors.Is(err, domain.ErrNotPlayersTurn):
		return ReasonNotPlayersTurn
	default:
		return ReasonGameFinished
	}
}
