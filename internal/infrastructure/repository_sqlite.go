package infrastructure

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/HyIsNoob/khytool/internal/domain"
)

// SQLiteJobRepository implements domain.JobRepository using SQLite
type SQLiteJobRepository struct {
	db *gorm.DB
}

// NewSQLiteJobRepository opens (and migrates) the queue database
func NewSQLiteJobRepository(dbPath string) (*SQLiteJobRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.DownloadJob{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteJobRepository{db: db}, nil
}

// Create creates a new job
func (r *SQLiteJobRepository) Create(job *domain.DownloadJob) error {
	return r.db.Create(job).Error
}

// Update updates an existing job
func (r *SQLiteJobRepository) Update(job *domain.DownloadJob) error {
	return r.db.Save(job).Error
}

// Delete deletes a job by ID
func (r *SQLiteJobRepository) Delete(id string) error {
	return r.db.Delete(&domain.DownloadJob{}, "id = ?", id).Error
}

// FindByID finds a job by ID
func (r *SQLiteJobRepository) FindByID(id string) (*domain.DownloadJob, error) {
	var job domain.DownloadJob
	err := r.db.First(&job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindByURL finds the most recent job for a URL in one of the given statuses
func (r *SQLiteJobRepository) FindByURL(url string, statuses []domain.JobStatus) (*domain.DownloadJob, error) {
	var job domain.DownloadJob
	err := r.db.Where("url = ? AND status IN ?", url, statuses).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// FindByStatus finds jobs by status
func (r *SQLiteJobRepository) FindByStatus(status domain.JobStatus) ([]*domain.DownloadJob, error) {
	var jobs []*domain.DownloadJob
	err := r.db.Where("status = ?", status).Find(&jobs).Error
	return jobs, err
}

// FindPending finds all queued jobs ordered by creation time
func (r *SQLiteJobRepository) FindPending() ([]*domain.DownloadJob, error) {
	var jobs []*domain.DownloadJob
	err := r.db.Where("status = ?", domain.StatusQueued).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// FindAll finds all jobs with optional filters
func (r *SQLiteJobRepository) FindAll(filters map[string]interface{}) ([]*domain.DownloadJob, error) {
	var jobs []*domain.DownloadJob
	query := r.db

	for key, value := range filters {
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// Count returns the total number of jobs
func (r *SQLiteJobRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&domain.DownloadJob{}).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of jobs by status
func (r *SQLiteJobRepository) CountByStatus(status domain.JobStatus) (int64, error) {
	var count int64
	err := r.db.Model(&domain.DownloadJob{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// ResetOrphanedProcessing requeues jobs a crashed run left in
// processing so the next queue pass picks them up again.
func (r *SQLiteJobRepository) ResetOrphanedProcessing() (int64, error) {
	result := r.db.Model(&domain.DownloadJob{}).
		Where("status = ?", domain.StatusProcessing).
		Update("status", domain.StatusQueued)
	return result.RowsAffected, result.Error
}

// GetStats returns job statistics
func (r *SQLiteJobRepository) GetStats() (*domain.JobStats, error) {
	stats := &domain.JobStats{}

	if err := r.db.Model(&domain.DownloadJob{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.JobStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.DownloadJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StatusQueued:
			stats.Queued = sc.Count
		case domain.StatusProcessing:
			stats.Processing = sc.Count
		case domain.StatusCompleted:
			stats.Completed = sc.Count
		case domain.StatusFailed:
			stats.Failed = sc.Count
		case domain.StatusCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
