// kenarcheck sends a probe board to one conversation to verify Kenar credentials.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/park285/xo-kenar-bot/internal/adapter/xopresenter"
	appcfg "github.com/park285/xo-kenar-bot/internal/config"
	"github.com/park285/xo-kenar-bot/internal/domain"
	"github.com/park285/xo-kenar-bot/internal/msgcat"
	"github.com/park285/xo-kenar-bot/internal/obslog"
	"github.com/park285/xo-kenar-bot/internal/xobuilder"
)

func main() {
	conv := flag.String("conversation", "", "conversation id to message")
	text := flag.String("text", "", "send plain text instead of a sample board")
	flag.Parse()

	if *conv == "" {
		log.Fatal("-conversation is required")
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Printf("logger init error: %v", err)
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	egress, err := xobuilder.BuildEgress(ctx, cfg, nil, obslog.L())
	if err != nil {
		log.Fatalf("egress init error: %v", err)
	}
	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}
	presenter := xopresenter.NewPresenter(egress, xopresenter.NewFormatter(catalog, cfg.RestartCommand, cfg.AskCommand))

	if *text != "" {
		if err := presenter.Text(ctx, *conv, *text); err != nil {
			log.Fatalf("send text: %v", err)
		}
		log.Printf("text sent to %s", *conv)
		return
	}

	probe := domain.NewGame(*conv, time.Now())
	sent, err := presenter.Board(ctx, *conv, probe)
	if err != nil {
		log.Fatalf("send board: %v", err)
	}
	log.Printf("board sent to %s: %q", *conv, sent)
}
