package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/ratefusion/internal/api/dto"
	"github.com/hxuan190/ratefusion/internal/ports"
)

// AdminHandler exposes a thin, read-mostly operator surface over the
// circuit breakers. Not part of the aggregation pipeline's own scope;
// wired as an operational convenience only.
type AdminHandler struct {
	breakers map[string]ports.Breaker
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(breakers map[string]ports.Breaker) *AdminHandler {
	return &AdminHandler{breakers: breakers}
}

// ListBreakers handles GET /admin/breakers.
func (h *AdminHandler) ListBreakers(c *gin.Context) {
	ctx := c.Request.Context()
	statuses := make([]dto.BreakerStatus, 0, len(h.breakers))

	for providerID, breaker := range h.breakers {
		snapshot, err := breaker.Snapshot(ctx)
		if err != nil {
			statuses = append(statuses, dto.BreakerStatus{ProviderID: providerID, State: "unknown"})
			continue
		}
		statuses = append(statuses, dto.BreakerStatus{
			ProviderID: providerID,
			State:      string(snapshot.State),
			Failures:   snapshot.Failures,
		})
	}

	c.JSON(http.StatusOK, gin.H{"breakers": statuses})
}

// ResetBreaker handles POST /admin/breakers/:provider/reset.
func (h *AdminHandler) ResetBreaker(c *gin.Context) {
	providerID := c.Param("provider")
	breaker, ok := h.breakers[providerID]
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse("NOT_FOUND", "unknown provider: "+providerID))
		return
	}

	if err := breaker.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("INTERNAL_ERROR", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"provider_id": providerID, "state": "CLOSED"})
}
