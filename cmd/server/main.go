package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/api"
	"github.com/yourusername/vgrab-go/api/handlers"
	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/infrastructure"
	"github.com/yourusername/vgrab-go/internal/observability"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var configPath = flag.String("config", "", "Path to config file (default: ./configs, ~/.vgrab, /etc/vgrab)")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vgrab-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Category logs: job events, errors, raw fetch output
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	log.Info("Starting vgrab server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("backend", config.Fetcher.Backend),
		zap.String("download_dir", config.Download.Dir))

	repo, err := infrastructure.NewSQLiteJobRepository(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	fetcher := newFetcher(config, multiLog, log)

	var metrics *observability.Metrics
	if config.Metrics.Enabled {
		metrics = observability.New()
	}

	events := handlers.NewEventHub(log, metrics)
	notifier := infrastructure.NewNotificationService(&config.Notification, log)

	opts := []app.ServiceOption{
		app.WithEventLog(multiLog),
		app.WithSink(events),
		app.WithSink(notifier),
	}
	if metrics != nil {
		opts = append(opts, app.WithMetrics(metrics))
	}
	service := app.NewDownloadService(fetcher, repo, &config.Download, log, opts...)

	if _, err := service.RecoverInterrupted(); err != nil {
		log.Warn("Failed to recover interrupted jobs", zap.Error(err))
	}

	router := api.SetupRouter(api.RouterConfig{
		Service:     service,
		Page:        domain.NewPageSource(config.Download.HomePage),
		Events:      events,
		Metrics:     metrics,
		MetricsPath: config.Metrics.Path,
		EventLogger: multiLog,
		LogsDir:     config.Logging.LogsDir,
		Logger:      log,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
		multiLog.LogAppError("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Running jobs end as cancelled and their records are saved before the repository closes
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Error("Download service did not stop in time", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

func newFetcher(config *domain.Config, multiLog *logger.MultiLogger, log *zap.Logger) domain.Fetcher {
	switch config.Fetcher.Backend {
	case domain.BackendBinary:
		return infrastructure.NewBinaryFetcher(&config.Fetcher, config.Fetcher.LogsDir, multiLog, log)
	default:
		return infrastructure.NewLibraryFetcher(&config.Fetcher, log)
	}
}
