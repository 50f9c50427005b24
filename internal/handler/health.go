package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const serviceName = "url-analytics"

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
	})
}
