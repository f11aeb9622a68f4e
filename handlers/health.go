package handlers

import (
	"context"
	"net/http"
	"time"

	"consultation-desk/utils"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	backend string
	redis   utils.RedisClient
}

// NewHealthHandler reports the selected store backend. redis is checked only
// when the local store keeps its data there.
func NewHealthHandler(backend string, redis utils.RedisClient) *HealthHandler {
	return &HealthHandler{backend: backend, redis: redis}
}

func (h *HealthHandler) Health(c *gin.Context) {
	details := gin.H{"store": h.backend}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.redis.SetToCache(ctx, "healthcheck", "ping", 10*time.Second); err != nil {
			details["redis"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "degraded",
				"details": details,
				"error":   err.Error(),
			})
			return
		}
		details["redis"] = "available"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"details": details,
	})
}
