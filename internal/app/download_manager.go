package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/internal/domain"
	"github.com/HyIsNoob/khytool/internal/extractor"
	"github.com/HyIsNoob/khytool/internal/infrastructure"
	"github.com/HyIsNoob/khytool/internal/registry"
)

// URLNormalizer turns raw URLs into content references
type URLNormalizer interface {
	Normalize(rawURL string) (domain.ContentRef, error)
}

// ExtractorSource resolves the extractor for a platform
type ExtractorSource interface {
	ForPlatform(p domain.Platform) (extractor.Extractor, error)
}

// MediaDownloader runs one transfer end to end
type MediaDownloader interface {
	Download(ctx context.Context, req infrastructure.DownloadRequest) (string, error)
	FetchThumbnail(ctx context.Context, thumbnailURL, dir, recordID string)
}

// DownloadManager runs queued jobs: normalize, extract, download,
// record. One goroutine per job; per-platform semaphores (limit 1)
// serialize work against the same site while letting platforms run in
// parallel.
type DownloadManager struct {
	repo       domain.JobRepository
	normalizer URLNormalizer
	extractors ExtractorSource
	downloader MediaDownloader
	reg        *registry.Registry
	notifier   *infrastructure.NotificationService
	config     *domain.DownloadConfig

	logger *zap.Logger

	platformSemaphores map[domain.Platform]chan struct{}

	mu      sync.Mutex
	running map[string]context.CancelFunc // job ID -> cancel
}

// NewDownloadManager creates a download manager
func NewDownloadManager(
	repo domain.JobRepository,
	normalizer URLNormalizer,
	extractors ExtractorSource,
	downloader MediaDownloader,
	reg *registry.Registry,
	notifier *infrastructure.NotificationService,
	config *domain.DownloadConfig,
	logger *zap.Logger,
) *DownloadManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	semaphores := make(map[domain.Platform]chan struct{})
	for _, p := range []domain.Platform{domain.PlatformYouTube, domain.PlatformTikTok, domain.PlatformFacebook} {
		semaphores[p] = make(chan struct{}, 1)
	}

	return &DownloadManager{
		repo:               repo,
		normalizer:         normalizer,
		extractors:         extractors,
		downloader:         downloader,
		reg:                reg,
		notifier:           notifier,
		config:             config,
		logger:             logger,
		platformSemaphores: semaphores,
		running:            make(map[string]context.CancelFunc),
	}
}

// ProcessJob runs one job to a terminal state
func (dm *DownloadManager) ProcessJob(ctx context.Context, job *domain.DownloadJob) error {
	platformSem, ok := dm.platformSemaphores[job.Platform]
	if !ok {
		return fmt.Errorf("no semaphore for platform: %s", job.Platform)
	}

	select {
	case platformSem <- struct{}{}:
		defer func() { <-platformSem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	// The job may have been cancelled while waiting for the semaphore
	if current, err := dm.repo.FindByID(job.ID); err == nil && current != nil && current.Status == domain.StatusCancelled {
		return nil
	}

	jobCtx, cancel := context.WithCancel(ctx)
	dm.mu.Lock()
	dm.running[job.ID] = cancel
	dm.mu.Unlock()
	defer func() {
		cancel()
		dm.mu.Lock()
		delete(dm.running, job.ID)
		dm.mu.Unlock()
	}()

	dm.logger.Info("Processing job",
		zap.String("id", job.ID),
		zap.String("url", job.URL),
		zap.String("platform", string(job.Platform)))

	job.MarkProcessing()
	if err := dm.repo.Update(job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	ref, err := dm.normalizer.Normalize(job.URL)
	if err != nil {
		return dm.fail(job, err)
	}

	ext, err := dm.extractors.ForPlatform(ref.Platform)
	if err != nil {
		return dm.fail(job, err)
	}

	meta, err := ext.Extract(jobCtx, ref, func(msg string) {
		dm.logger.Debug("Extraction progress", zap.String("id", job.ID), zap.String("msg", msg))
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return dm.cancelled(job)
		}
		return dm.fail(job, fmt.Errorf("extraction failed: %w", err))
	}

	recordID := dm.reg.Add(ref.Platform, meta.Title)
	job.RecordID = recordID
	dm.repo.Update(job)

	dm.notifier.NotifyDownloadStarted(meta.Title, ref.Platform)
	dm.downloader.FetchThumbnail(jobCtx, meta.ThumbnailURL, dm.config.ThumbnailsDir(), recordID)

	req := infrastructure.DownloadRequest{
		Ref:       ref,
		Meta:      meta,
		FormatID:  job.FormatID,
		OutputDir: dm.config.VideosDir(),
		RecordID:  recordID,
	}

	var lastErr error
	for attempt := 0; attempt <= dm.config.MaxRetries; attempt++ {
		if attempt > 0 {
			dm.logger.Info("Retrying download",
				zap.String("id", job.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", dm.config.MaxRetries))

			select {
			case <-time.After(dm.config.RetryDelay):
			case <-jobCtx.Done():
				return dm.cancelled(job)
			}

			job.IncrementRetry()
			dm.repo.Update(job)
		}

		path, err := dm.downloader.Download(jobCtx, req)
		if err == nil {
			job.MarkCompleted(path)
			if err := dm.repo.Update(job); err != nil {
				dm.logger.Error("Failed to update job status", zap.Error(err))
			}

			dm.logger.Info("Download completed",
				zap.String("id", job.ID),
				zap.String("file", path))
			dm.notifier.NotifyDownloadCompleted(meta.Title, ref.Platform)
			return nil
		}

		if errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled) {
			return dm.cancelled(job)
		}
		if fe, ok := domain.IsFileExists(err); ok {
			// Treat an existing file as success; the content is there
			dm.reg.MarkCompleted(recordID, fe.Path)
			job.MarkCompleted(fe.Path)
			dm.repo.Update(job)
			return nil
		}

		lastErr = err
		dm.logger.Warn("Download attempt failed",
			zap.String("id", job.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	dm.reg.MarkError(recordID, lastErr.Error())
	dm.notifier.NotifyDownloadFailed(meta.Title, ref.Platform)
	return dm.fail(job, lastErr)
}

func (dm *DownloadManager) fail(job *domain.DownloadJob, err error) error {
	job.MarkFailed(err)
	if uerr := dm.repo.Update(job); uerr != nil {
		dm.logger.Error("Failed to update job status", zap.Error(uerr))
	}
	dm.logger.Error("Job failed", zap.String("id", job.ID), zap.Error(err))
	return err
}

func (dm *DownloadManager) cancelled(job *domain.DownloadJob) error {
	job.MarkCancelled()
	if err := dm.repo.Update(job); err != nil {
		dm.logger.Error("Failed to update job status", zap.Error(err))
	}
	dm.logger.Info("Job cancelled", zap.String("id", job.ID))
	return nil
}

// CancelJob cancels a job. Running jobs get their context cancelled;
// queued jobs are marked cancelled directly.
func (dm *DownloadManager) CancelJob(id string) error {
	dm.mu.Lock()
	cancel, isRunning := dm.running[id]
	dm.mu.Unlock()

	if isRunning {
		cancel()
		return nil
	}

	job, err := dm.repo.FindByID(id)
	if err != nil || job == nil {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.IsTerminal() {
		return fmt.Errorf("job already in terminal state: %s", job.Status)
	}

	job.MarkCancelled()
	if err := dm.repo.Update(job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	dm.logger.Info("Job cancelled", zap.String("id", id))
	return nil
}

// RetryJob requeues a failed job
func (dm *DownloadManager) RetryJob(id string) error {
	job, err := dm.repo.FindByID(id)
	if err != nil || job == nil {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Status != domain.StatusFailed {
		return fmt.Errorf("job is not in failed state: %s", job.Status)
	}

	job.Status = domain.StatusQueued
	job.RetryCount = 0
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now()

	if err := dm.repo.Update(job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	dm.logger.Info("Job queued for retry", zap.String("id", id))
	return nil
}
