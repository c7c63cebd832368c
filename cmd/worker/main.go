package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/crewledger/crewledger/internal/aging"
	"github.com/crewledger/crewledger/internal/app"
	"github.com/crewledger/crewledger/internal/invoice"
	jobmetrics "github.com/crewledger/crewledger/internal/jobs"
	"github.com/crewledger/crewledger/internal/mirror"
	"github.com/crewledger/crewledger/internal/notify"
	"github.com/crewledger/crewledger/internal/placement"
	"github.com/crewledger/crewledger/internal/timesheet"
	"github.com/crewledger/crewledger/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	notifier := &notify.LogNotifier{Logger: logger}

	placementRepo := placement.NewRepository(pool)
	placementService := placement.NewService(placementRepo)

	timesheetRepo := timesheet.NewRepository(pool)
	timesheetService := timesheet.NewService(timesheetRepo, placementService, notifier, logger)

	agingRepo := aging.NewRepository(pool)
	agingCache := aging.NewCache(redisClient, cfg.AgingCacheTTL)
	agingService := aging.NewService(agingRepo, agingCache, logger)

	invoiceRepo := invoice.NewRepository(pool)
	invoiceService := invoice.NewService(invoiceRepo, timesheetService, notifier, mirror.NopPusher{}, agingCache, logger)

	metrics := jobmetrics.NewMetrics(nil)

	scheduleJob := jobs.NewTimesheetScheduleJob(placementService, timesheetService, logger, metrics)
	sweepJob := jobs.NewAnomalySweepJob(timesheetService, logger, metrics)
	warmupJob := jobs.NewAgingWarmupJob(agingService, logger, metrics)
	notifyJob := jobs.NewNotifyEventJob(notifier, logger, metrics)

	var mirrorJob *jobs.MirrorPushJob
	if cfg.MirrorURL != "" {
		mirrorJob = jobs.NewMirrorPushJob(invoiceService, mirror.NewClient(cfg.MirrorURL), logger, metrics)
	}

	scheduleTask, err := jobs.NewTimesheetScheduleTask(jobs.TimesheetSchedulePayload{})
	if err != nil {
		logger.Error("build schedule task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewAnomalySweepTask()
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewAgingWarmupTask(jobs.AgingWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskTimesheetSchedule, Handler: scheduleJob.Handle},
		{Type: jobs.TaskAnomalySweep, Handler: sweepJob.Handle},
		{Type: jobs.TaskAgingWarmup, Handler: warmupJob.Handle},
		{Type: jobs.TaskNotifyEvent, Handler: notifyJob.Handle},
	}
	if mirrorJob != nil {
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskMirrorPush, Handler: mirrorJob.Handle})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TimesheetScheduleSpec, Task: scheduleTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.AnomalySweepSpec, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.AgingWarmupSpec, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
