package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"github.com/lokeshec23/GC-AI/internal/app"
	"github.com/lokeshec23/GC-AI/internal/config"
	"github.com/lokeshec23/GC-AI/internal/logger"
)

func main() {
	// Initialize structured logger
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	var opts []app.Option
	if deps.NSQProducer != nil {
		opts = append(opts, app.WithEvents(deps.NSQProducer))
	}

	a, err := app.New(cfg, deps.DB, log, opts...)
	if err != nil {
		return err
	}

	if cfg.EnableEvents {
		consumer, err := nsq.NewConsumer(config.TopicExtractionJob, "ledger", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer for job events", "error", err)
		} else {
			consumer.AddHandler(a.EventConsumer)
			if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
				slog.Error("failed to connect to NSQLookupd", "error", err)
			} else {
				slog.Info("NSQ job event consumer connected")
			}
			defer consumer.Stop()
		}
	}

	return a.Run(ctx)
}
