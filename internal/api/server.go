package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/hxuan190/ratefusion/internal/api/handler"
	"github.com/hxuan190/ratefusion/internal/api/middleware"
	"github.com/hxuan190/ratefusion/internal/broadcast"
	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/pkg/database"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/hxuan190/ratefusion/internal/ports"
)

// Server is the HTTP surface over the rate aggregation pipeline.
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	cache      cache.Cache

	rateHandler   *handler.RateHandler
	healthHandler *handler.HealthHandler
	adminHandler  *handler.AdminHandler
	hub           *broadcast.Hub
}

// ServerConfig holds the already-constructed dependency graph the
// server routes to. Construction order is handled by the caller
// (cmd/api/main.go): durable store -> cache -> wiring.Build (providers ->
// breakers -> validator -> aggregator) -> broadcast hub -> handlers ->
// Server.
type ServerConfig struct {
	Config        *config.Config
	DB            *database.PostgresDB
	Cache         cache.Cache
	RateHandler   *handler.RateHandler
	Breakers      map[string]ports.Breaker
	Hub           *broadcast.Hub
}

// NewServer constructs a Server and its router.
func NewServer(cfg *ServerConfig) *Server {
	if cfg.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	server := &Server{
		config:        cfg.Config,
		cache:         cfg.Cache,
		rateHandler:   cfg.RateHandler,
		healthHandler: handler.NewHealthHandler(cfg.DB, cfg.Cache, cfg.Breakers),
		adminHandler:  handler.NewAdminHandler(cfg.Breakers),
		hub:           cfg.Hub,
	}

	server.setupRouter()
	return server
}

// setupRouter configures the Gin router with all middleware and routes.
func (s *Server) setupRouter() {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(s.corsMiddleware())
	router.Use(s.rateLimitMiddleware())
	router.Use(middleware.SanitizeInput())

	middleware.InitValidator()
	s.setupRoutes(router)

	s.router = router
}

// corsMiddleware configures CORS settings.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: s.config.API.AllowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-Request-ID",
		},
		ExposeHeaders: []string{
			"Content-Length",
			"X-Request-ID",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// rateLimitMiddleware configures per-IP rate limiting. This domain has
// no API-key concept, so there is only the global IP-scoped limiter.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	redisClient, ok := s.cache.(interface{ GetClient() *redis.Client })
	if !ok {
		logger.Warn("Rate limiting disabled: Redis client not available")
		return func(c *gin.Context) { c.Next() }
	}

	rateLimiter := middleware.NewRedisRateLimiter(redisClient.GetClient())
	return middleware.RateLimit(middleware.RateLimitConfig{
		Limiter: rateLimiter,
		IPLimit: s.config.API.RateLimit,
		Window:  1 * time.Minute,
	})
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthHandler.Health)

	router.POST("/convert", s.rateHandler.Convert)
	router.GET("/rate/:from/:to", s.rateHandler.GetRate)
	router.POST("/rate/:from/:to", s.rateHandler.GetRate)

	router.GET("/ws/rates", s.hub.HandleRates)
	router.GET("/ws/stats", s.hub.HandleStats)

	admin := router.Group("/admin")
	{
		admin.GET("/breakers", s.adminHandler.ListBreakers)
		admin.POST("/breakers/:provider/reset", s.adminHandler.ResetBreaker)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "The requested resource was not found",
			},
			"timestamp": time.Now().UTC(),
		})
	})
}

// Start starts the HTTP server in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.API.Host, s.config.API.Port)

	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.API.ReadTimeout,
		WriteTimeout:   s.config.API.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	logger.Info("Starting HTTP server", logger.Fields{
		"host": s.config.API.Host,
		"port": s.config.API.Port,
		"env":  s.config.Environment,
	})

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", err)
		}
	}()

	return nil
}

// Shutdown gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down HTTP server...")

	if s.httpServer == nil {
		return nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", err)
		return err
	}

	logger.Info("HTTP server stopped successfully")
	return nil
}

// GetRouter returns the Gin router (useful for testing).
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
