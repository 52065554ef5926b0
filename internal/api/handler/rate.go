package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/ratefusion/internal/aggregator"
	"github.com/hxuan190/ratefusion/internal/api/dto"
	"github.com/hxuan190/ratefusion/internal/api/middleware"
	apperrors "github.com/hxuan190/ratefusion/internal/shared/errors"
)

// RateHandler serves the conversion and spot-rate endpoints over the
// rate aggregation pipeline.
type RateHandler struct {
	aggregator *aggregator.Aggregator
}

// NewRateHandler constructs a RateHandler.
func NewRateHandler(agg *aggregator.Aggregator) *RateHandler {
	return &RateHandler{aggregator: agg}
}

// Convert handles POST /convert.
func (h *RateHandler) Convert(c *gin.Context) {
	var req dto.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("BAD_REQUEST", err.Error()))
		return
	}
	if !middleware.ValidateStruct(c, &req) {
		return
	}

	rate, err := h.aggregator.GetRate(c.Request.Context(), req.From, req.To)
	if err != nil {
		writeAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToConvertResponse(req, rate))
}

// GetRate handles GET/POST /rate/:from/:to.
func (h *RateHandler) GetRate(c *gin.Context) {
	from := c.Param("from")
	to := c.Param("to")

	rate, err := h.aggregator.GetRate(c.Request.Context(), from, to)
	if err != nil {
		writeAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromAggregatedRate(rate))
}

// writeAppError maps a domain AppError to its HTTP status, never leaking
// internals for anything other than InvalidCurrency/NoRateAvailable.
func writeAppError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("INTERNAL_ERROR", "internal server error"))
		return
	}
	c.JSON(appErr.StatusCode, dto.NewErrorResponse(string(appErr.Code), appErr.Message))
}
