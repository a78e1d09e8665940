package domain

// JobRepository defines the interface for download job persistence
type JobRepository interface {
	// Create creates a new job
	Create(job *DownloadJob) error

	// Update updates an existing job
	Update(job *DownloadJob) error

	// Delete deletes a job by ID
	Delete(id string) error

	// FindByID finds a job by ID
	FindByID(id string) (*DownloadJob, error)

	// FindByURL finds the most recent job for a URL in one of the given statuses
	FindByURL(url string, statuses []JobStatus) (*DownloadJob, error)

	// FindByStatus finds jobs by status
	FindByStatus(status JobStatus) ([]*DownloadJob, error)

	// FindPending finds all queued jobs ordered by creation time
	FindPending() ([]*DownloadJob, error)

	// FindAll finds all jobs with optional filters
	FindAll(filters map[string]interface{}) ([]*DownloadJob, error)

	// Count returns the total number of jobs
	Count() (int64, error)

	// CountByStatus returns the number of jobs by status
	CountByStatus(status JobStatus) (int64, error)

	// ResetOrphanedProcessing requeues jobs left in processing by a crash
	ResetOrphanedProcessing() (int64, error)

	// GetStats returns job statistics
	GetStats() (*JobStats, error)
}

// JobStats represents job queue statistics
type JobStats struct {
	Total      int64 `json:"total"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}
