package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyIsNoob/khytool/internal/domain"
)

// mockRepo implements domain.JobRepository for testing
type mockRepo struct {
	jobs []*domain.DownloadJob
}

func newMockRepo() *mockRepo {
	return &mockRepo{jobs: make([]*domain.DownloadJob, 0)}
}

func (m *mockRepo) Create(job *domain.DownloadJob) error {
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockRepo) Update(job *domain.DownloadJob) error {
	for i, j := range m.jobs {
		if j.ID == job.ID {
			m.jobs[i] = job
			return nil
		}
	}
	return nil
}

func (m *mockRepo) Delete(id string) error {
	for i, j := range m.jobs {
		if j.ID == id {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockRepo) FindByID(id string) (*domain.DownloadJob, error) {
	for _, j := range m.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) FindByURL(url string, statuses []domain.JobStatus) (*domain.DownloadJob, error) {
	for i := len(m.jobs) - 1; i >= 0; i-- {
		j := m.jobs[i]
		if j.URL == url {
			for _, s := range statuses {
				if j.Status == s {
					return j, nil
				}
			}
		}
	}
	return nil, nil
}

func (m *mockRepo) FindByStatus(status domain.JobStatus) ([]*domain.DownloadJob, error) {
	var out []*domain.DownloadJob
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *mockRepo) FindPending() ([]*domain.DownloadJob, error) {
	return m.FindByStatus(domain.StatusQueued)
}

func (m *mockRepo) FindAll(filters map[string]interface{}) ([]*domain.DownloadJob, error) {
	return m.jobs, nil
}

func (m *mockRepo) Count() (int64, error) { return int64(len(m.jobs)), nil }

func (m *mockRepo) CountByStatus(status domain.JobStatus) (int64, error) {
	jobs, _ := m.FindByStatus(status)
	return int64(len(jobs)), nil
}

func (m *mockRepo) ResetOrphanedProcessing() (int64, error) { return 0, nil }

func (m *mockRepo) GetStats() (*domain.JobStats, error) {
	stats := &domain.JobStats{Total: int64(len(m.jobs))}
	for _, j := range m.jobs {
		switch j.Status {
		case domain.StatusQueued:
			stats.Queued++
		case domain.StatusProcessing:
			stats.Processing++
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func newTestQueueManager(repo domain.JobRepository) *QueueManager {
	config := &domain.QueueConfig{
		CheckInterval:   10 * time.Second,
		AutoExitOnEmpty: false,
		EmptyWaitTime:   30 * time.Second,
	}
	return NewQueueManager(repo, nil, config, nil)
}

func TestAddDownload_NewURL(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	job, err := qm.AddDownload("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", job.URL)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, "best", job.FormatID, "empty format falls back to best")
	assert.Len(t, repo.jobs, 1)
}

func TestAddDownload_DetectsPlatform(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	job, err := qm.AddDownload("https://www.tiktok.com/@user/video/7123456789012345678", "", "bestaudio")
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformTikTok, job.Platform)
	assert.Equal(t, "bestaudio", job.FormatID)
}

func TestAddDownload_UnsupportedURL(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	_, err := qm.AddDownload("https://example.com/video", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported platform")
	assert.Empty(t, repo.jobs)
}

func TestAddDownload_EmptyURL(t *testing.T) {
	qm := newTestQueueManager(newMockRepo())

	_, err := qm.AddDownload("", domain.PlatformYouTube, "")
	require.Error(t, err)
}

func TestAddDownload_DuplicateQueued(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	first, err := qm.AddDownload("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "")
	require.NoError(t, err)

	second, err := qm.AddDownload("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "should return existing job, not create a new one")
	assert.Len(t, repo.jobs, 1)
}

func TestAddDownload_DuplicateCompleted_FileExists(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	tmpFile, err := os.CreateTemp("", "khytool_test_*.mp4")
	require.NoError(t, err)
	tmpFilePath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpFilePath)

	done := domain.NewDownloadJob("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "best")
	done.MarkCompleted(tmpFilePath)
	require.NoError(t, repo.Create(done))

	job, err := qm.AddDownload("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "")
	require.NoError(t, err)
	assert.Equal(t, done.ID, job.ID, "completed job with the file still on disk is reused")
	assert.Len(t, repo.jobs, 1)
}

func TestAddDownload_DuplicateCompleted_FileMissing(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	done := domain.NewDownloadJob("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "best")
	done.MarkCompleted("/nonexistent/path/video.mp4")
	require.NoError(t, repo.Create(done))

	job, err := qm.AddDownload("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "")
	require.NoError(t, err)
	assert.NotEqual(t, done.ID, job.ID, "missing file means a fresh download")
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Len(t, repo.jobs, 2)
}

func TestAddDownload_FailedJobGetsNewAttempt(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	failed := domain.NewDownloadJob("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "best")
	failed.MarkFailed(assert.AnError)
	require.NoError(t, repo.Create(failed))

	job, err := qm.AddDownload("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "")
	require.NoError(t, err)
	assert.NotEqual(t, failed.ID, job.ID)
	assert.Equal(t, domain.StatusQueued, job.Status)
}

func TestQueueManager_StartStop(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	assert.False(t, qm.IsRunning())

	require.NoError(t, qm.Start(context.Background()))
	assert.True(t, qm.IsRunning())
	assert.Error(t, qm.Start(context.Background()), "double start rejected")

	require.NoError(t, qm.Stop())
	assert.False(t, qm.IsRunning())
	assert.Error(t, qm.Stop(), "double stop rejected")

	select {
	case <-qm.WaitForExit():
	case <-time.After(time.Second):
		t.Fatal("exit channel not closed after Stop")
	}
}

func TestDeleteJob(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	job, err := qm.AddDownload("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "")
	require.NoError(t, err)

	require.NoError(t, qm.DeleteJob(job.ID))
	assert.Empty(t, repo.jobs)

	assert.Error(t, qm.DeleteJob(job.ID), "deleting twice fails")
}

func TestDeleteJob_ProcessingRejected(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	job := domain.NewDownloadJob("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, "best")
	job.MarkProcessing()
	require.NoError(t, repo.Create(job))

	assert.Error(t, qm.DeleteJob(job.ID))
	assert.Len(t, repo.jobs, 1)
}

func TestQueueManager_GetStats(t *testing.T) {
	repo := newMockRepo()
	qm := newTestQueueManager(repo)

	_, err := qm.AddDownload("https://www.youtube.com/watch?v=aaaaaaaaaaa", domain.PlatformYouTube, "")
	require.NoError(t, err)
	_, err = qm.AddDownload("https://www.tiktok.com/@u/video/7000000000000000001", "", "")
	require.NoError(t, err)

	stats, err := qm.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Queued)
}
