package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus represents the lifecycle state of a registry record
type RecordStatus string

const (
	RecordRunning   RecordStatus = "running"
	RecordPaused    RecordStatus = "paused"
	RecordCompleted RecordStatus = "completed"
	RecordError     RecordStatus = "error"
)

// DownloadRecord is one entry of the download registry. The fields
// tagged json:"-" are live progress state only; the persisted ledger
// carries the identifying fields plus progress/status/output and the
// failure reason. Timestamp is the last-update time and drives the
// most-recent-first sort order.
type DownloadRecord struct {
	ID            string       `json:"id"`
	Source        Platform     `json:"source"`
	Title         string       `json:"title"`
	ThumbnailPath string       `json:"thumbnail_path,omitempty"`
	Progress      int          `json:"progress"`
	Status        RecordStatus `json:"status"`
	OutputFile    string       `json:"output_file,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	Timestamp     int64        `json:"timestamp"`

	Speed         string `json:"-"`
	Downloaded    string `json:"-"`
	TotalSize     string `json:"-"`
	RemainingTime string `json:"-"`
}

// NewDownloadRecord creates a record in the running state
func NewDownloadRecord(source Platform, title string) *DownloadRecord {
	return &DownloadRecord{
		ID:        uuid.New().String(),
		Source:    source,
		Title:     title,
		Status:    RecordRunning,
		Progress:  0,
		Timestamp: time.Now().Unix(),
	}
}

// Touch refreshes the last-update time
func (r *DownloadRecord) Touch() {
	r.Timestamp = time.Now().Unix()
}

// MarkCompleted marks the record as completed with its final file
func (r *DownloadRecord) MarkCompleted(outputFile string) {
	r.Status = RecordCompleted
	r.OutputFile = outputFile
	r.Progress = 100
	r.Touch()
}

// MarkError marks the record as failed
func (r *DownloadRecord) MarkError(msg string) {
	r.Status = RecordError
	r.ErrorMessage = msg
	r.Touch()
}

// MarkPaused marks the record as paused (cancelled mid-transfer)
func (r *DownloadRecord) MarkPaused() {
	r.Status = RecordPaused
	r.Touch()
}

// IsTerminal reports whether the record reached a persisted state
func (r *DownloadRecord) IsTerminal() bool {
	return r.Status == RecordCompleted || r.Status == RecordError
}
