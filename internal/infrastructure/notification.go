package infrastructure

import (
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/internal/domain"
)

// NotificationService sends desktop notifications for queue events
type NotificationService struct {
	enabled bool
	logger  *zap.Logger
}

// NewNotificationService creates a notification service
func NewNotificationService(enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{enabled: enabled, logger: logger}
}

// Send sends a notification using the platform mechanism
func (n *NotificationService) Send(title, message string) error {
	if !n.enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, message)
	default:
		n.logger.Debug("No notification method for OS", zap.String("os", runtime.GOOS))
		return nil
	}

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification", zap.Error(err))
		return err
	}
	return nil
}

// NotifyDownloadQueued sends notification when a job is queued
func (n *NotificationService) NotifyDownloadQueued(title string, platform domain.Platform) {
	n.Send("Download Queued", fmt.Sprintf("%s (%s)", truncateString(title, 40), platform))
}

// NotifyDownloadStarted sends notification when a job starts
func (n *NotificationService) NotifyDownloadStarted(title string, platform domain.Platform) {
	n.Send("Download Started", fmt.Sprintf("%s (%s)", truncateString(title, 40), platform))
}

// NotifyDownloadCompleted sends notification when a job completes
func (n *NotificationService) NotifyDownloadCompleted(title string, platform domain.Platform) {
	n.Send("Download Completed", fmt.Sprintf("%s (%s)", truncateString(title, 40), platform))
}

// NotifyDownloadFailed sends notification when a job fails
func (n *NotificationService) NotifyDownloadFailed(title string, platform domain.Platform) {
	n.Send("Download Failed", fmt.Sprintf("%s (%s)", truncateString(title, 40), platform))
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
