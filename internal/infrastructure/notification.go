package infrastructure

import (
	"fmt"
	"os/exec"

	"github.com/yourusername/vgrab-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationService sends desktop notifications for finished jobs.
// It is registered as an Observer and ignores progress.
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %q with title %q`, message, title)
		if n.config.Sound {
			script += ` sound name "Glass"`
		}
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// OnProgress is a no-op
func (n *NotificationService) OnProgress(domain.Progress) {}

// OnCompletion sends notification when a download completes
func (n *NotificationService) OnCompletion(r domain.JobRecord) {
	n.Send("Download Completed", fmt.Sprintf("Success: %s (%s)", truncateString(r.Source, 30), r.Quality))
}

// OnFailure sends notification when a download fails or is cancelled
func (n *NotificationService) OnFailure(r domain.JobRecord) {
	title := "Download Failed"
	if r.ErrorMessage == domain.ErrCancelled.Error() {
		title = "Download Cancelled"
	}
	n.Send(title, fmt.Sprintf("%s: %s", truncateString(r.Source, 30), truncateString(r.ErrorMessage, 60)))
}

// truncateString keeps the first maxLen characters of s
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
