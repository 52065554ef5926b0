package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hxuan190/ratefusion/internal/api"
	"github.com/hxuan190/ratefusion/internal/api/handler"
	"github.com/hxuan190/ratefusion/internal/broadcast"
	"github.com/hxuan190/ratefusion/internal/config"
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

	logger.Info("Starting rate fusion API server...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	logger.Info("Configuration loaded successfully", logger.Fields{
		"environment": cfg.Environment,
		"api_port":    cfg.API.Port,
	})

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

	db.LogPoolStats()

	logger.Info("Initializing Redis connection...")
	redisClient, err := cache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to initialize Redis connection", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx)
	pingCancel()
	if err != nil {
		logger.Fatal("Redis connection failed", err)
	}
	logger.Info("Redis connection established")

	repo := repository.New(db.GetGORM(), db.DB)

	graph, err := wiring.Build(context.Background(), cfg, redisClient, repo)
	if err != nil {
		logger.Fatal("Failed to build dependency graph", err)
	}
	logger.Info("Dependency graph constructed", logger.Fields{
		"primary_provider": cfg.Providers.Primary,
		"provider_count":   len(graph.Providers),
	})

	hub := broadcast.NewHub(redisClient)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	go func() {
		if err := hub.Run(hubCtx); err != nil {
			logger.Error("Broadcast hub stopped", err)
		}
	}()

	apiServer := api.NewServer(&api.ServerConfig{
		Config:      cfg,
		DB:          db,
		Cache:       redisClient,
		RateHandler: handler.NewRateHandler(graph.Aggregator),
		Breakers:    graph.Breakers,
		Hub:         hub,
	})

	if err := apiServer.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", err)
	}

	logger.Info("API server started successfully", logger.Fields{
		"port": cfg.API.Port,
		"host": cfg.API.Host,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Received shutdown signal, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", err)
	}

	hubCancel()

	if err := redisClient.Close(); err != nil {
		logger.Error("Error closing Redis connection", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("Error closing database connection", err)
	}

	fmt.Println("API server stopped")
}
