package handler

import (
	"time"

	"github.com/SergeiKhy/url-analytics/internal/middleware"
	"github.com/SergeiKhy/url-analytics/internal/service"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the HTTP surface. rateLimiter may be nil.
func NewRouter(
	linkService service.LinkService,
	statsService service.StatsService,
	recorder service.ClickRecorder,
	auth middleware.Authenticator,
	rateLimiter *middleware.RateLimiter,
	baseURL string,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(requestLogger(logger))

	linkHandler := NewLinkHandler(linkService, recorder, baseURL, logger)
	statsHandler := NewStatsHandler(statsService, logger)

	router.GET("/health", HealthCheck)

	api := router.Group("/api/url")
	if rateLimiter != nil {
		api.Use(rateLimiter.MiddlewareWithKey(middleware.CredentialKey))
	}
	api.Use(middleware.RequireAuth(auth))
	{
		api.POST("/shorten", linkHandler.CreateLink)
		api.GET("/myurls", linkHandler.ListLinks)
		api.GET("/dashboard", statsHandler.Dashboard)
		api.GET("/:shortCode/analytics", statsHandler.Analytics)
		api.DELETE("/:shortCode", linkHandler.DeleteLink)
	}

	// Redirects are public and not rate limited.
	router.GET("/:shortCode", linkHandler.Redirect)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
