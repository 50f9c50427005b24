package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/middleware"
	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StatsHandler struct {
	service service.StatsService
	logger  *zap.Logger
}

func NewStatsHandler(service service.StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{service: service, logger: logger}
}

// Dashboard handles GET /api/url/dashboard.
func (h *StatsHandler) Dashboard(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		abortUnauthorized(c)
		return
	}

	stats, err := h.service.GetDashboardStats(c.Request.Context(), owner)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Analytics handles GET /api/url/:shortCode/analytics?startDate=&endDate=.
// Both dates are optional, formatted YYYY-MM-DD and inclusive.
func (h *StatsHandler) Analytics(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		abortUnauthorized(c)
		return
	}

	from, err := parseDate(c.Query("startDate"), "startDate")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	to, err := parseDate(c.Query("endDate"), "endDate")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	analytics, err := h.service.GetLinkAnalytics(c.Request.Context(), c.Param("shortCode"), owner, from, to)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// parseDate returns the zero time for an empty value.
func parseDate(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DayLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", service.ErrValidation, name)
	}
	return t, nil
}
