package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sonroyaalmerol/suisei/internal/config"
	"github.com/sonroyaalmerol/suisei/internal/handlers"
	"github.com/sonroyaalmerol/suisei/internal/logging"
	"github.com/sonroyaalmerol/suisei/internal/repository"
	"github.com/sonroyaalmerol/suisei/internal/stream"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logging.Setup(cfg.Debug, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stream.Install(ctx)

	db, err := repository.OpenDB(cfg)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	bot := handlers.NewBot(cfg, repository.NewRepo(db))
	if err := bot.Run(ctx); err != nil {
		slog.Error("bot exited", "err", err)
		os.Exit(1)
	}
}
