package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/flowbooks/flowbooks/internal/app"
	"github.com/flowbooks/flowbooks/internal/documents"
	"github.com/flowbooks/flowbooks/internal/observability"
	"github.com/flowbooks/flowbooks/internal/platform/db"
	"github.com/flowbooks/flowbooks/internal/shared"
	"github.com/flowbooks/flowbooks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	store := documents.NewRepository(dbpool, metrics)
	allocator := documents.NewAllocator(store, documents.NewPrefixResolver(store, nil, 0, logger), logger, metrics)
	timeline := documents.NewTimelineResolver(store, logger)
	service := documents.NewService(store, allocator, timeline, auditLogger, logger, metrics)

	overdueTask, err := jobs.NewOverdueScanTask(jobs.OverdueScanPayload{})
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueScan, Handler: jobs.NewOverdueScanHandler(service, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: overdueTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}
