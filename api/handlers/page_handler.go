package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/vgrab-go/internal/domain"
	"go.uber.org/zap"
)

// PageHandler exposes the shared page source so a client can browse to a
// page and then download whatever is open
type PageHandler struct {
	page    *domain.PageSource
	service JobService
	logger  *zap.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(page *domain.PageSource, service JobService, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		page:    page,
		service: service,
		logger:  logger,
	}
}

// NavigateRequest represents a request to open a page
type NavigateRequest struct {
	URL string `json:"url" binding:"required"`
}

// DownloadPageRequest selects options for downloading the open page
type DownloadPageRequest struct {
	Quality     string `json:"quality,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// Current handles GET /api/v1/page
func (h *PageHandler) Current(c *gin.Context) {
	loc, _ := h.page.CurrentLocator()
	c.JSON(http.StatusOK, gin.H{"url": loc})
}

// Navigate handles POST /api/v1/page/navigate
func (h *PageHandler) Navigate(c *gin.Context) {
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc, err := h.page.Navigate(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": loc})
}

// Home handles POST /api/v1/page/home
func (h *PageHandler) Home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"url": h.page.Home()})
}

// Download handles POST /api/v1/page/download
func (h *PageHandler) Download(c *gin.Context) {
	var req DownloadPageRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	record, err := h.service.SubmitFrom(h.page, req.Quality, req.Destination)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to download page", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, record)
}
