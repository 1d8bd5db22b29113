package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/api/handlers"
	"github.com/yourusername/vgrab-go/api/middleware"
	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/observability"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

// RouterConfig holds everything the HTTP router serves
type RouterConfig struct {
	Service     handlers.JobService
	Page        *domain.PageSource
	Events      *handlers.EventHub
	Metrics     *observability.Metrics // nil disables /metrics
	MetricsPath string
	EventLogger *logger.MultiLogger
	LogsDir     string // defaults to the EventLogger directory
	Logger      *zap.Logger
}

// SetupRouter sets up the HTTP router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.LoggerWithEvents(log, cfg.EventLogger))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.Metrics.Handler()))
	}

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Service)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		jobHandler := handlers.NewJobHandler(cfg.Service, log)
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.AddJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/stats", jobHandler.GetStats)
			jobs.POST("/prune", jobHandler.PruneJobs)
			jobs.GET("/:id", jobHandler.GetJob)
			jobs.DELETE("/:id", jobHandler.DeleteJob)
			jobs.POST("/:id/cancel", jobHandler.CancelJob)
		}

		if cfg.Page != nil {
			pageHandler := handlers.NewPageHandler(cfg.Page, cfg.Service, log)
			page := v1.Group("/page")
			{
				page.GET("", pageHandler.Current)
				page.POST("/navigate", pageHandler.Navigate)
				page.POST("/home", pageHandler.Home)
				page.POST("/download", pageHandler.Download)
			}
		}

		if cfg.Events != nil {
			v1.GET("/events", cfg.Events.HandleWebSocket)
		}

		logsDir := cfg.LogsDir
		if logsDir == "" && cfg.EventLogger != nil {
			logsDir = cfg.EventLogger.GetLogsDir()
		}
		if logsDir != "" {
			logHandler := handlers.NewLogHandler(logsDir)
			logStream := handlers.NewLogWebSocketHandler(logsDir, log)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/stream", logStream.HandleWebSocket)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
