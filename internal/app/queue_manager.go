package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/internal/domain"
	"github.com/HyIsNoob/khytool/pkg/logger"
)

// QueueManager owns the job queue: accepting submissions, deduplicating
// against live jobs, and dispatching pending work to the download
// manager on a polling loop.
type QueueManager struct {
	repo        domain.JobRepository
	downloadMgr *DownloadManager
	config      *domain.QueueConfig
	multiLogger *logger.MultiLogger

	mu       sync.RWMutex
	running  bool
	inFlight map[string]struct{}

	stopChan chan struct{}
	exitChan chan struct{}
	exitOnce sync.Once
	workerWg sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.JobRepository,
	downloadMgr *DownloadManager,
	config *domain.QueueConfig,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	return &QueueManager{
		repo:        repo,
		downloadMgr: downloadMgr,
		config:      config,
		multiLogger: multiLogger,
		inFlight:    make(map[string]struct{}),
		stopChan:    make(chan struct{}),
		exitChan:    make(chan struct{}),
	}
}

// Start starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	qm.mu.Unlock()

	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("queue_started")
	}

	qm.workerWg.Add(1)
	go qm.processQueue(ctx)

	return nil
}

// Stop stops the queue processor and waits for workers to finish
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	qm.mu.Unlock()

	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("queue_stopped")
	}
	close(qm.stopChan)
	qm.workerWg.Wait()
	qm.signalExit()

	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// WaitForExit returns a channel closed when the processor has exited,
// either by Stop or by the auto-exit-on-empty timer.
func (qm *QueueManager) WaitForExit() <-chan struct{} {
	return qm.exitChan
}

func (qm *QueueManager) signalExit() {
	qm.exitOnce.Do(func() { close(qm.exitChan) })
}

// AddDownload queues a URL for download. A URL already queued or being
// processed returns the live job instead of a duplicate; a completed
// job whose file is still on disk is returned as-is.
func (qm *QueueManager) AddDownload(url string, platform domain.Platform, formatID string) (*domain.DownloadJob, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	if platform == "" {
		platform = domain.DetectPlatform(url)
	}
	if !domain.ValidatePlatform(platform) {
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}

	existing, err := qm.repo.FindByURL(url, []domain.JobStatus{
		domain.StatusQueued,
		domain.StatusProcessing,
		domain.StatusCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing job: %w", err)
	}
	if existing != nil {
		switch existing.Status {
		case domain.StatusQueued, domain.StatusProcessing:
			if qm.multiLogger != nil {
				qm.multiLogger.LogQueueEvent("duplicate_skipped",
					zap.String("id", existing.ID),
					zap.String("url", url))
			}
			return existing, nil
		case domain.StatusCompleted:
			if existing.FilePath != "" && fileExists(existing.FilePath) {
				if qm.multiLogger != nil {
					qm.multiLogger.LogQueueEvent("already_downloaded",
						zap.String("id", existing.ID),
						zap.String("file_path", existing.FilePath))
				}
				return existing, nil
			}
			// The file was removed; queue a fresh download
		}
	}

	job := domain.NewDownloadJob(url, platform, formatID)
	if err := qm.repo.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("job_added",
			zap.String("id", job.ID),
			zap.String("url", url),
			zap.String("platform", string(platform)),
			zap.String("format_id", job.FormatID))
	}

	return job, nil
}

// GetJob retrieves a job by ID
func (qm *QueueManager) GetJob(id string) (*domain.DownloadJob, error) {
	return qm.repo.FindByID(id)
}

// ListJobs lists jobs with optional filters
func (qm *QueueManager) ListJobs(filters map[string]interface{}) ([]*domain.DownloadJob, error) {
	return qm.repo.FindAll(filters)
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.JobStats, error) {
	return qm.repo.GetStats()
}

// CancelJob cancels a queued or running job
func (qm *QueueManager) CancelJob(id string) error {
	return qm.downloadMgr.CancelJob(id)
}

// RetryJob requeues a failed job
func (qm *QueueManager) RetryJob(id string) error {
	return qm.downloadMgr.RetryJob(id)
}

// DeleteJob removes a job. Processing jobs must be cancelled first.
func (qm *QueueManager) DeleteJob(id string) error {
	job, err := qm.repo.FindByID(id)
	if err != nil || job == nil {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.IsProcessing() {
		return fmt.Errorf("job is processing, cancel it first")
	}

	if err := qm.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent("job_deleted", zap.String("id", id))
	}
	return nil
}

// processQueue polls the repository for pending jobs and dispatches
// each to its own goroutine. The download manager's per-platform
// semaphores bound the actual concurrency.
func (qm *QueueManager) processQueue(ctx context.Context) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	emptyStartTime := time.Time{}

	for {
		select {
		case <-ctx.Done():
			if qm.multiLogger != nil {
				qm.multiLogger.LogQueueEvent("queue_processor_stopped",
					zap.String("reason", "context_cancelled"))
			}
			qm.signalExit()
			return
		case <-qm.stopChan:
			if qm.multiLogger != nil {
				qm.multiLogger.LogQueueEvent("queue_processor_stopped",
					zap.String("reason", "stop_signal"))
			}
			return
		case <-ticker.C:
			pending, err := qm.repo.FindPending()
			if err != nil {
				if qm.multiLogger != nil {
					qm.multiLogger.LogAppError("Failed to fetch pending jobs", zap.Error(err))
				}
				continue
			}

			dispatched := qm.dispatch(ctx, pending)

			if qm.activeCount() == 0 && len(pending) == 0 && dispatched == 0 {
				if emptyStartTime.IsZero() {
					emptyStartTime = time.Now()
					if qm.multiLogger != nil {
						qm.multiLogger.LogQueueEvent("queue_empty")
					}
				} else if qm.config.AutoExitOnEmpty && time.Since(emptyStartTime) > qm.config.EmptyWaitTime {
					if qm.multiLogger != nil {
						qm.multiLogger.LogQueueEvent("queue_auto_exit",
							zap.String("reason", "empty_timeout"))
					}
					qm.mu.Lock()
					qm.running = false
					qm.mu.Unlock()
					qm.signalExit()
					return
				}
			} else {
				emptyStartTime = time.Time{}
			}
		}
	}
}

// dispatch spawns workers for pending jobs not already in flight
func (qm *QueueManager) dispatch(ctx context.Context, pending []*domain.DownloadJob) int {
	dispatched := 0
	for _, job := range pending {
		qm.mu.Lock()
		if _, busy := qm.inFlight[job.ID]; busy {
			qm.mu.Unlock()
			continue
		}
		qm.inFlight[job.ID] = struct{}{}
		qm.mu.Unlock()
		dispatched++

		if qm.multiLogger != nil {
			qm.multiLogger.LogDownloadEvent("job_started",
				zap.String("id", job.ID),
				zap.String("url", job.URL),
				zap.String("platform", string(job.Platform)))
		}

		qm.workerWg.Add(1)
		go func(job *domain.DownloadJob) {
			defer qm.workerWg.Done()
			defer func() {
				qm.mu.Lock()
				delete(qm.inFlight, job.ID)
				qm.mu.Unlock()
			}()

			if err := qm.downloadMgr.ProcessJob(ctx, job); err != nil {
				if qm.multiLogger != nil {
					qm.multiLogger.LogDownloadEvent("job_failed",
						zap.String("id", job.ID),
						zap.Error(err))
					qm.multiLogger.LogAppError("Failed to process job",
						zap.String("id", job.ID),
						zap.Error(err))
				}
			} else {
				if qm.multiLogger != nil {
					qm.multiLogger.LogDownloadEvent("job_finished",
						zap.String("id", job.ID),
						zap.String("status", string(job.Status)),
						zap.String("file_path", job.FilePath))
				}
			}
		}(job)
	}
	return dispatched
}

func (qm *QueueManager) activeCount() int {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return len(qm.inFlight)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
