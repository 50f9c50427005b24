package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/middleware"
	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// notFoundPage is served for every unresolvable code so unknown, deleted and
// malformed codes are indistinguishable.
var notFoundPage = []byte(`<!DOCTYPE html>
<html><head><title>Not Found</title></head>
<body><h1>404</h1><p>This link does not exist.</p></body></html>
`)

type LinkHandler struct {
	service  service.LinkService
	recorder service.ClickRecorder
	baseURL  string
	logger   *zap.Logger
}

func NewLinkHandler(service service.LinkService, recorder service.ClickRecorder, baseURL string, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service:  service,
		recorder: recorder,
		baseURL:  baseURL,
		logger:   logger,
	}
}

type LinkResponse struct {
	ID          int64     `json:"id"`
	OriginalURL string    `json:"originalUrl"`
	ShortCode   string    `json:"shortCode"`
	ShortURL    string    `json:"shortUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	ClickCount  int64     `json:"clickCount"`
}

func (h *LinkHandler) toResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		OriginalURL: link.OriginalURL,
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/" + link.ShortCode,
		CreatedAt:   link.CreatedAt,
		ClickCount:  link.ClickCount,
	}
}

// CreateLink handles POST /api/url/shorten.
func (h *LinkHandler) CreateLink(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		abortUnauthorized(c)
		return
	}

	var req models.CreateLinkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", zap.Error(err))
		writeError(c, h.logger, fmt.Errorf("%w: originalUrl is required", service.ErrValidation))
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), req.OriginalURL, owner)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(link))
}

// Redirect handles GET /:shortCode.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("shortCode")

	link, err := h.service.GetLink(c.Request.Context(), code)
	if err != nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", notFoundPage)
		return
	}

	event := &models.ClickEvent{
		ID:        uuid.NewString(),
		ShortCode: link.ShortCode,
		ClickedAt: time.Now().UTC(),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	}
	if err := h.recorder.RecordClick(c.Request.Context(), event); err != nil {
		h.logger.Debug("Failed to record click", zap.String("short_code", code), zap.Error(err))
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, link.OriginalURL)
}

// DeleteLink handles DELETE /api/url/:shortCode.
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		abortUnauthorized(c)
		return
	}

	if err := h.service.DeleteLink(c.Request.Context(), c.Param("shortCode"), owner); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListLinks handles GET /api/url/myurls?page=&size=.
func (h *LinkHandler) ListLinks(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		abortUnauthorized(c)
		return
	}

	page := queryInt(c, "page", 0)
	size := queryInt(c, "size", 0)

	result, err := h.service.ListLinks(c.Request.Context(), owner, page, size)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	content := make([]LinkResponse, 0, len(result.Content))
	for i := range result.Content {
		content = append(content, h.toResponse(&result.Content[i]))
	}
	c.JSON(http.StatusOK, models.Page[LinkResponse]{
		Content:       content,
		TotalElements: result.TotalElements,
		TotalPages:    result.TotalPages,
		Size:          result.Size,
		Number:        result.Number,
		First:         result.First,
		Last:          result.Last,
	})
}

// queryInt returns def when the parameter is absent or not a number; range
// checks are left to the service.
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: "Authentication required",
	})
}
