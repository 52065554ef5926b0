package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/ingestor"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/pkg/database"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/hxuan190/ratefusion/internal/repository"
	"github.com/hxuan190/ratefusion/internal/wiring"
)

func main() {
	logger.Init(logger.Config{
		Level:  "info",
		Format: "json",
	})

	logger.Info("Starting rate fusion ingestor worker...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database connection", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.WaitForConnection(ctx, 5); err != nil {
		cancel()
		logger.Fatal("Database connection failed", err)
	}
	cancel()

	redisClient, err := cache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to initialize Redis connection", err)
	}

	repo := repository.New(db.GetGORM(), db.DB)

	graph, err := wiring.Build(context.Background(), cfg, redisClient, repo)
	if err != nil {
		logger.Fatal("Failed to build dependency graph", err)
	}

	ing := ingestor.New(graph.Aggregator, cfg.Ingestor)

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(ingestor.TaskTypeUpdateCycle, ing.HandleUpdateCycle)

	srv := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"ingestor": 1},
		LogLevel:    asynq.InfoLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Ingestor task processing failed", err, logger.Fields{"task_type": task.Type()})
		}),
	})

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{LogLevel: asynq.InfoLevel})
	if _, err := ing.Register(scheduler); err != nil {
		logger.Fatal("Failed to register ingestor periodic task", err)
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatal("Scheduler failed", err)
		}
	}()

	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Fatal("Worker server failed", err)
		}
	}()

	logger.Info("Ingestor worker started", logger.Fields{
		"update_interval": cfg.Ingestor.UpdateInterval.String(),
		"base_currencies":  cfg.Ingestor.BaseCurrencies,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Received shutdown signal, gracefully shutting down...")

	ing.Stop()
	scheduler.Shutdown()
	srv.Shutdown()

	if err := redisClient.Close(); err != nil {
		logger.Error("Error closing Redis connection", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("Error closing database connection", err)
	}

	fmt.Println("Ingestor worker stopped")
}
