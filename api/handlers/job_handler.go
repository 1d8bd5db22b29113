package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
	"go.uber.org/zap"
)

// JobService is the part of the download service the HTTP layer uses
type JobService interface {
	Submit(req app.SubmitRequest) (*domain.JobRecord, error)
	SubmitFrom(provider domain.SourceProvider, quality, destination string) (*domain.JobRecord, error)
	Get(id string) (*domain.JobRecord, error)
	List(filters map[string]interface{}) ([]*domain.JobRecord, error)
	Cancel(id string) error
	Delete(id string) error
	Prune(state domain.JobState) (*app.PruneResult, error)
	Stats() (*domain.JobStats, error)
	ActiveCount() int
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	service JobService
	logger  *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(service JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

// AddJobRequest represents a request to start a download
type AddJobRequest struct {
	URL         string `json:"url" binding:"required"`
	Quality     string `json:"quality,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// AddJob handles POST /api/v1/jobs
func (h *JobHandler) AddJob(c *gin.Context) {
	var req AddJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.Submit(app.SubmitRequest{
		Source:      req.URL,
		Quality:     req.Quality,
		Destination: req.Destination,
	})
	if err != nil {
		h.respondError(c, "Failed to add job", err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	record, err := h.service.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	filters := make(map[string]interface{})

	if state := c.Query("state"); state != "" {
		if !domain.ValidateState(domain.JobState(state)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
			return
		}
		filters["state"] = state
	}
	if quality := c.Query("quality"); quality != "" {
		q, err := domain.ParseQuality(quality)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filters["quality"] = string(q)
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filters["limit"] = limit
	}

	records, err := h.service.List(filters)
	if err != nil {
		h.respondError(c, "Failed to list jobs", err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetStats handles GET /api/v1/jobs/stats
func (h *JobHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats()
	if err != nil {
		h.respondError(c, "Failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelJob handles POST /api/v1/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.Cancel(id); err != nil {
		h.respondError(c, "Failed to cancel job", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "cancellation requested"})
}

// DeleteJob handles DELETE /api/v1/jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	if err := h.service.Delete(c.Param("id")); err != nil {
		h.respondError(c, "Failed to delete job", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job deleted"})
}

// PruneJobs handles POST /api/v1/jobs/prune[?state=succeeded|failed]
func (h *JobHandler) PruneJobs(c *gin.Context) {
	result, err := h.service.Prune(domain.JobState(c.Query("state")))
	if err != nil {
		h.respondError(c, "Failed to prune jobs", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// respondError maps service errors onto HTTP status codes
func (h *JobHandler) respondError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case app.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, app.ErrServiceClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
