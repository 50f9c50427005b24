package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/url-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps service errors to a status code and error kind.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, resp)
}

func classify(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()}
	case errors.Is(err, service.ErrLinkNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Link not found"}
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "Link belongs to another user"}
	case errors.Is(err, service.ErrCodeSpaceExhausted):
		return http.StatusInternalServerError, ErrorResponse{Error: "code_space_exhausted", Message: "Could not allocate a short code, try again"}
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "Service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Internal server error"}
	}
}
