// Package httpapi exposes the webhook endpoints over fasthttp.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/xo-kenar-bot/internal/dedupe"
	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/store"
	"github.com/park285/xo-kenar-bot/internal/webhook"
	"github.com/park285/xo-kenar-bot/pkg/xodto"
)

const (
	PathChatWebhook     = "/chatbot/webhook/"
	PathCallbackWebhook = "/xo/webhook/"
	PathBoardPrefix     = "/xo/board/"
	PathHealth          = "/healthz"

	requestTimeout = 45 * time.Second
	maxBodySize    = 1 << 20
)

// Dispatcher is the part of webhook.Dispatcher the server calls.
type Dispatcher interface {
	HandleChatMessage(ctx context.Context, conversationID, text string) webhook.Result
	HandleCallback(ctx context.Context, gameID int64, position int) webhook.Result
}

type GameLoader interface {
	Load(ctx context.Context, id int64) (*domain.Game, error)
}

type BoardRenderer interface {
	PNG(ctx context.Context, g *domain.Game, header string) ([]byte, error)
}

type Server struct {
	dispatcher Dispatcher
	games      GameLoader
	boards     BoardRenderer
	seen       dedupe.Set
	logger     *zap.Logger
	srv        *fasthttp.Server
}

type Deps struct {
	Dispatcher Dispatcher
	// Games and Boards enable the board image endpoint when both are set.
	Games  GameLoader
	Boards BoardRenderer
	// Seen drops redelivered chat messages when set.
	Seen   dedupe.Set
	Logger *zap.Logger
}

func New(d Deps) (*Server, error) {
	if d.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dispatcher: d.Dispatcher,
		games:      d.Games,
		boards:     d.Boards,
		seen:       d.Seen,
		logger:     logger,
	}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "xo-kenar-bot",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       requestTimeout + 5*time.Second,
		MaxRequestBodySize: maxBodySize,
	}
	return s, nil
}

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

// Serve is used with custom listeners, e.g. fasthttputil in tests.
func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

func (s *Server) Handler() fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		reqID := uuid.NewString()
		rc.Response.Header.Set("X-Request-ID", reqID)
		logger := s.logger.With(zap.String("request_id", reqID))
		started := time.Now()

		path := string(rc.Path())
		switch {
		case path == PathHealth:
			rc.SetStatusCode(fasthttp.StatusOK)
			rc.SetBodyString("ok")
		case path == PathChatWebhook:
			if s.requirePost(rc) {
				s.handleChat(rc, logger)
			}
		case path == PathCallbackWebhook:
			if s.requirePost(rc) {
				s.handleCallback(rc, logger)
			}
		case strings.HasPrefix(path, PathBoardPrefix) && rc.IsGet():
			s.handleBoard(rc, logger, strings.TrimPrefix(path, PathBoardPrefix))
		default:
			rc.SetStatusCode(fasthttp.StatusNotFound)
		}

		logger.Debug("http_request",
			zap.String("method", string(rc.Method())),
			zap.String("path", path),
			zap.Int("status", rc.Response.StatusCode()),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
}

func (s *Server) requirePost(rc *fasthttp.RequestCtx) bool {
	if !rc.IsPost() {
		rc.Response.Header.Set("Allow", fasthttp.MethodPost)
		rc.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return false
	}
	if !bytes.Contains(bytes.ToLower(rc.Request.Header.ContentType()), []byte("application/json")) {
		rc.SetStatusCode(fasthttp.StatusUnsupportedMediaType)
		return false
	}
	return true
}

func (s *Server) handleChat(rc *fasthttp.RequestCtx, logger *zap.Logger) {
	var body xodto.ChatWebhook
	if err := json.Unmarshal(rc.PostBody(), &body); err != nil {
		writeError(rc, fasthttp.StatusBadRequest, xodto.CodeBadRequest, "invalid json")
		return
	}
	if err := body.Validate(); err != nil {
		writeError(rc, fasthttp.StatusBadRequest, xodto.CodeBadRequest, "Invalid message structure")
		return
	}
	msg := body.NewChatbotMessage

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if s.seen != nil {
		first, err := s.seen.FirstSeen(ctx, msg.ID)
		if err != nil {
			logger.Warn("dedupe_failed", zap.String("message_id", msg.ID), zap.Error(err))
		} else if !first {
			logger.Info("webhook_duplicate", zap.String("message_id", msg.ID))
			writeJSON(rc, fasthttp.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	res := s.dispatcher.HandleChatMessage(ctx, msg.Conversation.ID, *msg.Text)
	logResult(logger, "webhook_chat_done", res, zap.String("message_id", msg.ID))
	if res.Kind == webhook.KindFailed && s.seen != nil {
		// let the platform's retry go through
		if err := s.seen.Forget(ctx, msg.ID); err != nil {
			logger.Warn("dedupe_forget_failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	if res.OK() {
		writeJSON(rc, fasthttp.StatusOK, map[string]string{"status": res.Kind.String()})
		return
	}
	writeResult(rc, res)
}

func (s *Server) handleCallback(rc *fasthttp.RequestCtx, logger *zap.Logger) {
	var body xodto.CallbackRequest
	if err := json.Unmarshal(rc.PostBody(), &body); err != nil {
		writeError(rc, fasthttp.StatusBadRequest, xodto.CodeBadRequest, "invalid json")
		return
	}
	if err := body.Validate(); err != nil {
		writeError(rc, fasthttp.StatusBadRequest, xodto.CodeBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	extra := body.ExtraData
	res := s.dispatcher.HandleCallback(ctx, extra.GameID.Value, int(extra.Position.Value))
	logResult(logger, "webhook_callback_done", res, zap.String("conversation_id", *body.ConversationID))
	if res.OK() {
		writeJSON(rc, fasthttp.StatusOK, xodto.CallbackResponse{URL: *body.ReturnURL})
		return
	}
	writeResult(rc, res)
}

func (s *Server) handleBoard(rc *fasthttp.RequestCtx, logger *zap.Logger, name string) {
	if s.games == nil || s.boards == nil {
		rc.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(name, ".png"), 10, 64)
	if err != nil || !strings.HasSuffix(name, ".png") {
		rc.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	g, err := s.games.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(rc, fasthttp.StatusNotFound, xodto.CodeNotFound, "game not found")
		return
	}
	if err != nil {
		logger.Error("board_load_failed", zap.Int64("game_id", id), zap.Error(err))
		writeError(rc, fasthttp.StatusInternalServerError, xodto.CodeInternal, "")
		return
	}
	img, err := s.boards.PNG(ctx, g, fmt.Sprintf("Game %d - %s", g.ID, g.Status))
	if err != nil {
		logger.Error("board_render_failed", zap.Int64("game_id", id), zap.Error(err))
		writeError(rc, fasthttp.StatusInternalServerError, xodto.CodeInternal, "")
		return
	}
	rc.SetContentType("image/png")
	rc.Response.Header.Set("Cache-Control", "no-store")
	rc.SetStatusCode(fasthttp.StatusOK)
	rc.SetBody(img)
}

// StatusFor maps a dispatcher outcome to an HTTP status.
func StatusFor(k webhook.Kind) int {
	switch k {
	case webhook.KindOK:
		return fasthttp.StatusOK
	case webhook.KindRejected:
		return fasthttp.StatusUnprocessableEntity
	case webhook.KindRateLimited:
		return fasthttp.StatusTooManyRequests
	case webhook.KindNotFound:
		return fasthttp.StatusNotFound
	default:
		return fasthttp.StatusInternalServerError
	}
}

func codeFor(k webhook.Kind) string {
	switch k {
	case webhook.KindRejected:
		return xodto.CodeRejected
	case webhook.KindRateLimited:
		return xodto.CodeRateLimited
	case webhook.KindNotFound:
		return xodto.CodeNotFound
	case webhook.KindInternalInconsistency:
		return xodto.CodeInconsistent
	default:
		return xodto.CodeInternal
	}
}

func writeResult(rc *fasthttp.RequestCtx, res webhook.Result) {
	msg := res.Message
	if res.Kind == webhook.KindFailed || res.Kind == webhook.KindInternalInconsistency {
		// internal details stay in the logs
		msg = res.Reason
	}
	rc.SetStatusCode(StatusFor(res.Kind))
	writeJSONBody(rc, xodto.ErrorResponse{Error: xodto.DomainError{
		Code:      codeFor(res.Kind),
		Message:   msg,
		Retryable: res.Kind == webhook.KindFailed,
	}})
}

func writeError(rc *fasthttp.RequestCtx, status int, code, msg string) {
	rc.SetStatusCode(status)
	writeJSONBody(rc, xodto.ErrorResponse{Error: xodto.DomainError{Code: code, Message: msg}})
}

func writeJSON(rc *fasthttp.RequestCtx, status int, v any) {
	rc.SetStatusCode(status)
	writeJSONBody(rc, v)
}

func writeJSONBody(rc *fasthttp.RequestCtx, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	rc.SetContentType("application/json")
	rc.SetBody(raw)
}

func logResult(logger *zap.Logger, event string, res webhook.Result, fields ...zap.Field) {
	fields = append(fields,
		zap.String("kind", res.Kind.String()),
		zap.Int64("game_id", res.GameID),
	)
	if res.Reason != "" {
		fields = append(fields, zap.String("reason", res.Reason))
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	switch res.Kind {
	case webhook.KindOK, webhook.KindRejected, webhook.KindRateLimited, webhook.KindNotFound:
		logger.Info(event, fields...)
	default:
		logger.Error(event, fields...)
	}
}
