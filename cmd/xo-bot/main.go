package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/xo-kenar-bot/internal/config"
	"github.com/park285/xo-kenar-bot/internal/obslog"
	"github.com/park285/xo-kenar-bot/internal/xobuilder"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Printf("logger init error: %v (falling back to defaults)", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	bctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := xobuilder.New(bctx, cfg, logger, xobuilder.Options{})
	cancel()
	if err != nil {
		logger.Fatal("init_error", zap.Error(err))
	}
	defer func() { _ = deps.Close() }()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreBackend),
			zap.String("egress", cfg.EgressMode),
			zap.Bool("assistant", cfg.AssistantEnabled()),
		)
		errCh <- deps.Server.ListenAndServe(cfg.HTTPAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("http_serve_error", zap.Error(err))
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	if err := deps.Server.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
}
