package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
var Version = "dev"

// HealthHandler handles health check requests
type HealthHandler struct {
	service JobService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service JobService) *HealthHandler {
	return &HealthHandler{
		service: service,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	ActiveJobs int    `json:"active_jobs"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    Version,
		ActiveJobs: h.service.ActiveCount(),
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if _, err := h.service.Stats(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "job store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
