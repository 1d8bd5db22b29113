package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryJob   LogCategory = "job"   // Job lifecycle events (JSON)
	CategoryError LogCategory = "error" // Application errors (JSON)
	CategoryFetch LogCategory = "fetch" // Raw yt-dlp output (plain text, written by the binary fetcher)
)

// Categories lists the categories the log API can read
func Categories() []LogCategory {
	return []LogCategory{CategoryJob, CategoryError, CategoryFetch}
}

// ValidCategory checks if a category name is known
func ValidCategory(name string) bool {
	for _, c := range Categories() {
		if string(c) == name {
			return true
		}
	}
	return false
}

type categoryLogger struct {
	logger *zap.Logger
	file   *os.File
	level  zapcore.Level
}

// MultiLogger writes structured events to one JSON file per category and day.
// Files roll over to a new name when the date changes.
type MultiLogger struct {
	loggers     map[LogCategory]*categoryLogger
	config      MultiLoggerConfig
	mu          sync.RWMutex
	currentDate string
	now         func() time.Time
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		loggers: make(map[LogCategory]*categoryLogger),
		config:  config,
		now:     time.Now,
	}
	ml.currentDate = ml.now().Format("20060102")

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	for category, lvl := range map[LogCategory]zapcore.Level{
		CategoryJob:   level,
		CategoryError: zapcore.ErrorLevel,
	} {
		cl, err := ml.createStructuredLogger(category, lvl)
		if err != nil {
			ml.closeFiles()
			return nil, fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		ml.loggers[category] = cl
	}

	return ml, nil
}

func (ml *MultiLogger) createStructuredLogger(category LogCategory, level zapcore.Level) (*categoryLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	encoder := zapcore.NewJSONEncoder(encoderConfig)

	file, err := os.OpenFile(ml.categoryLogPath(category), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), level)

	return &categoryLogger{logger: zap.New(core), file: file, level: level}, nil
}

func (ml *MultiLogger) categoryLogPath(category LogCategory) string {
	filename := fmt.Sprintf("%s-%s.log", category, ml.currentDate)
	return filepath.Join(ml.config.LogsDir, filename)
}

// rotate reopens every category file when the day changed
func (ml *MultiLogger) rotate() {
	today := ml.now().Format("20060102")

	ml.mu.RLock()
	same := today == ml.currentDate
	ml.mu.RUnlock()
	if same {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if today == ml.currentDate {
		return
	}
	ml.currentDate = today
	for category, old := range ml.loggers {
		cl, err := ml.createStructuredLogger(category, old.level)
		if err != nil {
			// previous file stays in use
			continue
		}
		_ = old.logger.Sync()
		_ = old.file.Close()
		ml.loggers[category] = cl
	}
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.rotate()

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if cl, ok := ml.loggers[category]; ok {
		return cl.logger
	}

	return ml.loggers[CategoryError].logger
}

// Job returns the job lifecycle logger
func (ml *MultiLogger) Job() *zap.Logger {
	return ml.GetLogger(CategoryJob)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogJobEvent logs a job lifecycle event with structured data
func (ml *MultiLogger) LogJobEvent(event string, fields ...zap.Field) {
	ml.Job().Info(event, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, cl := range ml.loggers {
		if err := cl.logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes all category files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, cl := range ml.loggers {
		if err := cl.logger.Sync(); err != nil {
			lastErr = err
		}
	}
	if err := ml.closeFiles(); err != nil {
		lastErr = err
	}
	return lastErr
}

func (ml *MultiLogger) closeFiles() error {
	var lastErr error
	for _, cl := range ml.loggers {
		if err := cl.file.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
