package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/crewledger/crewledger/internal/aging"
	"github.com/crewledger/crewledger/internal/app"
	"github.com/crewledger/crewledger/internal/invoice"
	"github.com/crewledger/crewledger/internal/mirror"
	"github.com/crewledger/crewledger/internal/notify"
	"github.com/crewledger/crewledger/internal/observability"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	notifier := &notify.AsyncNotifier{Enqueuer: jobsClient, Logger: logger}

	var pusher mirror.Pusher = mirror.NopPusher{}
	if cfg.MirrorURL != "" {
		pusher = &mirror.AsyncPusher{Enqueuer: jobsClient, Logger: logger}
	}

	placementRepo := placement.NewRepository(pool)
	placementService := placement.NewService(placementRepo)
	placementHandler := placement.NewHandler(logger, placementService)

	timesheetRepo := timesheet.NewRepository(pool)
	timesheetService := timesheet.NewService(timesheetRepo, placementService, notifier, logger)
	timesheetHandler := timesheet.NewHandler(logger, timesheetService)

	agingRepo := aging.NewRepository(pool)
	agingCache := aging.NewCache(redisClient, cfg.AgingCacheTTL)
	agingService := aging.NewService(agingRepo, agingCache, logger)
	agingHandler := aging.NewHandler(logger, agingService)

	invoiceRepo := invoice.NewRepository(pool)
	invoiceService := invoice.NewService(invoiceRepo, timesheetService, notifier, pusher, agingCache, logger)
	invoiceHandler := invoice.NewHandler(logger, invoiceService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		PlacementHandler: placementHandler,
		TimesheetHandler: timesheetHandler,
		InvoiceHandler:   invoiceHandler,
		AgingHandler:     agingHandler,
		JobHandler:       jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
