package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/ratefusion/internal/api/dto"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/pkg/database"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/hxuan190/ratefusion/internal/ports"
)

// HealthHandler composes the durable store, cache, and per-breaker
// status into the aggregate /health response.
type HealthHandler struct {
	db       *database.PostgresDB
	cache    cache.Cache
	breakers map[string]ports.Breaker
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *database.PostgresDB, c cache.Cache, breakers map[string]ports.Breaker) *HealthHandler {
	return &HealthHandler{db: db, cache: c, breakers: breakers}
}

// Health handles GET /health. The durable store is the only critical
// service; an unhealthy critical service makes the whole response
// unhealthy, while an unhealthy cache or a non-CLOSED breaker only makes
// it degraded. There is no separate aggregator entry. Always returns HTTP 200 — the verdict lives
// in the body, per the non-goal on treating health as an auth surface.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	services := map[string]dto.ServiceHealth{
		"database": h.checkDatabase(ctx),
		"cache":    h.checkCache(ctx),
	}
	for providerID, breaker := range h.breakers {
		services["breaker:"+providerID] = h.checkBreaker(ctx, breaker)
	}

	status := dto.HealthHealthy
	for _, svc := range services {
		if svc.Status != "healthy" && svc.Critical {
			status = dto.HealthUnhealthy
			break
		}
		if svc.Status != "healthy" {
			status = dto.HealthDegraded
		}
	}

	c.JSON(http.StatusOK, dto.HealthResponse{Status: status, Services: services})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) dto.ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		return dto.ServiceHealth{Status: "unhealthy", Critical: true, Detail: err.Error()}
	}
	return dto.ServiceHealth{Status: "healthy", Critical: true}
}

func (h *HealthHandler) checkCache(ctx context.Context) dto.ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.cache.Ping(ctx); err != nil {
		return dto.ServiceHealth{Status: "unhealthy", Critical: false, Detail: err.Error()}
	}
	return dto.ServiceHealth{Status: "healthy", Critical: false}
}

func (h *HealthHandler) checkBreaker(ctx context.Context, breaker ports.Breaker) dto.ServiceHealth {
	snapshot, err := breaker.Snapshot(ctx)
	if err != nil {
		logger.Warn("health: breaker snapshot failed", logger.Fields{"provider_id": breaker.ProviderID(), "error": err.Error()})
		return dto.ServiceHealth{Status: "degraded", Critical: false, Detail: err.Error()}
	}
	if snapshot.State != "CLOSED" {
		return dto.ServiceHealth{Status: "degraded", Critical: false, Detail: string(snapshot.State)}
	}
	return dto.ServiceHealth{Status: "healthy", Critical: false}
}
