// Package xobuilder assembles the bot's runtime graph from configuration.
package xobuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/xo-kenar-bot/internal/adapter/xopresenter"
	"github.com/park285/xo-kenar-bot/internal/assistant"
	"github.com/park285/xo-kenar-bot/internal/config"
	"github.com/park285/xo-kenar-bot/internal/dedupe"
	"github.com/park285/xo-kenar-bot/internal/httpapi"
	"github.com/park285/xo-kenar-bot/internal/kenar"
	"github.com/park285/xo-kenar-bot/internal/msgcat"
	"github.com/park285/xo-kenar-bot/internal/paramstore"
	"github.com/park285/xo-kenar-bot/internal/quota"
	"github.com/park285/xo-kenar-bot/internal/render"
	"github.com/park285/xo-kenar-bot/internal/store"
	"github.com/park285/xo-kenar-bot/internal/store/memstore"
	"github.com/park285/xo-kenar-bot/internal/store/redisstore"
	"github.com/park285/xo-kenar-bot/internal/store/sqlstore"
	"github.com/park285/xo-kenar-bot/internal/webhook"
	"github.com/park285/xo-kenar-bot/internal/xo"
)

type Deps struct {
	Backend    store.Backend
	Machine    *xo.Machine
	Limiter    *quota.Limiter
	Egress     kenar.Egress
	Formatter  *xopresenter.Formatter
	Dispatcher *webhook.Dispatcher
	Server     *httpapi.Server
}

// Close releases the store connections.
func (d *Deps) Close() error {
	if d == nil || d.Backend == nil {
		return nil
	}
	return d.Backend.Close()
}

// Options lets callers (tests, kenarcheck) replace pieces that talk to the outside.
type Options struct {
	// Params resolves *_PARAM secrets; nil builds an SSM client on demand.
	Params paramstore.Getter
	// Egress overrides the notifier built from EgressMode.
	Egress kenar.Egress
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts Options) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	params := opts.Params
	if params == nil && needsParams(cfg) {
		ps, err := paramstore.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("init parameter store: %w", err)
		}
		params = ps
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	formatter := xopresenter.NewFormatter(catalog, cfg.RestartCommand, cfg.AskCommand)

	egress := opts.Egress
	if egress == nil {
		egress, err = buildEgress(ctx, cfg, params, logger)
		if err != nil {
			return nil, err
		}
	}

	var ask webhook.Assistant
	if cfg.AssistantEnabled() {
		key, err := paramstore.Resolve(ctx, params, cfg.AssistantAPIKey, cfg.AssistantAPIKeyParam)
		if err != nil {
			return nil, fmt.Errorf("resolve assistant api key: %w", err)
		}
		client, err := assistant.NewClient(cfg.AssistantBaseURL, key, assistant.WithModel(cfg.AssistantModel))
		if err != nil {
			return nil, fmt.Errorf("init assistant: %w", err)
		}
		ask = client
	} else {
		logger.Info("assistant_disabled", zap.String("reason", "ASSISTANT_BASE_URL not set"))
	}

	backend, seen, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps, err := wire(cfg, logger, backend, seen, egress, ask, formatter)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return deps, nil
}

func wire(cfg *config.AppConfig, logger *zap.Logger, backend store.Backend, seen dedupe.Set, egress kenar.Egress, ask webhook.Assistant, formatter *xopresenter.Formatter) (*Deps, error) {
	machine, err := xo.NewMachine(backend.Games(), logger, xo.WithRetryAttempts(cfg.StoreMaxRetries))
	if err != nil {
		return nil, err
	}
	limiter, err := quota.NewLimiter(backend.Quotas(), cfg.AssistantDailyLimit, logger, quota.WithRetryAttempts(cfg.StoreMaxRetries))
	if err != nil {
		return nil, err
	}
	dispatcher, err := webhook.NewDispatcher(webhook.Deps{
		Machine:   machine,
		Quota:     limiter,
		Notifier:  egress,
		Assistant: ask,
		Renderer:  formatter,
		Commands:  webhook.Commands{Restart: cfg.RestartCommand, Ask: cfg.AskCommand},
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	server, err := httpapi.New(httpapi.Deps{
		Dispatcher: dispatcher,
		Games:      machine,
		Boards:     render.New(),
		Seen:       seen,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if base := strings.TrimRight(cfg.PublicBaseURL, "/"); base != "" {
		logger.Info("board_images", zap.String("url", base+httpapi.PathBoardPrefix+"{id}.png"))
	}
	return &Deps{
		Backend:    backend,
		Machine:    machine,
		Limiter:    limiter,
		Egress:     egress,
		Formatter:  formatter,
		Dispatcher: dispatcher,
		Server:     server,
	}, nil
}

func needsParams(cfg *config.AppConfig) bool {
	if cfg.EgressMode == config.EgressHTTP && cfg.KenarAPIKey == "" && cfg.KenarAPIKeyParam != "" {
		return true
	}
	return cfg.AssistantEnabled() && cfg.AssistantAPIKey == "" && cfg.AssistantAPIKeyParam != ""
}

// BuildEgress resolves the Kenar key and returns the configured notifier.
func BuildEgress(ctx context.Context, cfg *config.AppConfig, params paramstore.Getter, logger *zap.Logger) (kenar.Egress, error) {
	if params == nil && needsParams(cfg) {
		ps, err := paramstore.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("init parameter store: %w", err)
		}
		params = ps
	}
	return buildEgress(ctx, cfg, params, logger)
}

func buildEgress(ctx context.Context, cfg *config.AppConfig, params paramstore.Getter, logger *zap.Logger) (kenar.Egress, error) {
	if cfg.EgressMode == config.EgressDryRun {
		return kenar.NewEgress(kenar.ModeDryRun, nil, logger)
	}
	key, err := paramstore.Resolve(ctx, params, cfg.KenarAPIKey, cfg.KenarAPIKeyParam)
	if err != nil {
		return nil, fmt.Errorf("resolve kenar api key: %w", err)
	}
	if key == "" {
		return nil, errors.New("kenar api key resolved to an empty value")
	}
	return kenar.NewEgress(kenar.ModeHTTP, kenar.NewClient(cfg.KenarBaseURL, key), logger)
}

// openBackend picks the store and a matching dedupe set: Redis ids live next
// to the Redis store, every other backend dedupes in process.
func openBackend(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (store.Backend, dedupe.Set, error) {
	ttl := time.Duration(cfg.DedupeTTLSec) * time.Second
	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.StoreRedis:
		rs, err := redisstore.Open(octx, cfg.RedisURL,
			redisstore.WithLogger(logger),
			redisstore.WithTTL(time.Duration(cfg.RedisTTLSec)*time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return rs, dedupe.NewRedis(rs.Client(), ttl), nil
	case config.StorePostgres:
		ss, err := sqlstore.Open(octx, sqlstore.Postgres, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return ss, dedupe.NewMemory(ttl, nil), nil
	case config.StoreSQLite:
		ss, err := sqlstore.Open(octx, sqlstore.SQLite, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return ss, dedupe.NewMemory(ttl, nil), nil
	case config.StoreMemory, "":
		logger.Warn("store_memory", zap.String("note", "games are lost on restart"))
		return memstore.New(), dedupe.NewMemory(ttl, nil), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
