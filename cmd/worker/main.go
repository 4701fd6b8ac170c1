package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sudo-init-do/agriloop/internal/alerts"
	"github.com/sudo-init-do/agriloop/internal/config"
	"github.com/sudo-init-do/agriloop/internal/db"
)

// The worker sends the notification emails the API enqueues.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender, err := alerts.NewSender(cfg.Notify.Mail)
	if err != nil {
		logger.Error("mailer", "error", err)
		os.Exit(1)
	}
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	proc := alerts.NewProcessor(alerts.NewPGDirectory(pool), sender, logger)
	srv := alerts.NewServer(cfg.AsynqRedis(), cfg.Notify.WorkerConcurrency)
	if err := srv.Start(proc.Mux()); err != nil {
		logger.Error("asynq server", "error", err)
		os.Exit(1)
	}
	logger.Info("worker started", "redis", cfg.Redis.Addr, "concurrency", cfg.Notify.WorkerConcurrency)

	<-ctx.Done()
	srv.Shutdown()
	logger.Info("worker stopped")
}
