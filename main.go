package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eidolonworld/eidolon/eidolon"
	"github.com/eidolonworld/eidolon/eidolon/economy/events"
	"github.com/eidolonworld/eidolon/eidolon/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting Eidolon economy server",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldTick := flag.Bool("tick-market", false, "Run one market price tick on startup")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := eidolon.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	app := eidolon.New(*cfg, version, commit)
	if err := app.Setup(ctx, events.LogPublisher{}); err != nil {
		slog.Error("Failed to set up application",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer app.Close()

	slog.Info("Database ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if *shouldTick {
		slog.Info("Running startup market tick...")
		if _, err := app.MarketEngine.SimulateTick(ctx, 0); err != nil {
			slog.Error("Startup market tick failed", slog.String("error", err.Error()))
			os.Exit(-1)
		}
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	app.MarketScheduler.Start(runCtx)

	slog.Info("Eidolon economy server is now running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down...")
}
