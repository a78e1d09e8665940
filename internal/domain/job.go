package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of a queued download job
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// DownloadJob is a queued download task
type DownloadJob struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	URL          string     `json:"url" gorm:"not null"`
	Platform     Platform   `json:"platform" gorm:"not null"`
	FormatID     string     `json:"format_id" gorm:"default:best"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Status       JobStatus  `json:"status" gorm:"not null;index"`
	FilePath     string     `json:"file_path,omitempty"`
	RecordID     string     `json:"record_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewDownloadJob creates a new queued job
func NewDownloadJob(url string, platform Platform, formatID string) *DownloadJob {
	if formatID == "" {
		formatID = "best"
	}
	return &DownloadJob{
		ID:        uuid.New().String(),
		URL:       url,
		Platform:  platform,
		FormatID:  formatID,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// MarkProcessing marks the job as processing
func (j *DownloadJob) MarkProcessing() {
	j.Status = StatusProcessing
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted marks the job as completed
func (j *DownloadJob) MarkCompleted(filePath string) {
	j.Status = StatusCompleted
	j.FilePath = filePath
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed marks the job as failed
func (j *DownloadJob) MarkFailed(err error) {
	j.Status = StatusFailed
	j.ErrorMessage = err.Error()
	j.UpdatedAt = time.Now()
}

// MarkCancelled marks the job as cancelled
func (j *DownloadJob) MarkCancelled() {
	j.Status = StatusCancelled
	j.UpdatedAt = time.Now()
}

// IncrementRetry increments the retry count
func (j *DownloadJob) IncrementRetry() {
	j.RetryCount++
	j.UpdatedAt = time.Now()
}

// CanRetry checks if the job can be retried
func (j *DownloadJob) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries && j.Status == StatusFailed
}

// IsTerminal checks if the job is in a terminal state
func (j *DownloadJob) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusCancelled
}

// IsPending checks if the job is waiting to be picked up
func (j *DownloadJob) IsPending() bool {
	return j.Status == StatusQueued
}

// IsProcessing checks if the job is currently processing
func (j *DownloadJob) IsProcessing() bool {
	return j.Status == StatusProcessing
}
