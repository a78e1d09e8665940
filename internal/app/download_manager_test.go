package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyIsNoob/khytool/internal/domain"
	"github.com/HyIsNoob/khytool/internal/extractor"
	"github.com/HyIsNoob/khytool/internal/infrastructure"
	"github.com/HyIsNoob/khytool/internal/registry"
)

type fakeNormalizer struct {
	ref domain.ContentRef
	err error
}

func (f *fakeNormalizer) Normalize(rawURL string) (domain.ContentRef, error) {
	return f.ref, f.err
}

type fakeExtractor struct {
	platform domain.Platform
	meta     *domain.VideoMetadata
	err      error
}

func (f *fakeExtractor) Platform() domain.Platform { return f.platform }

func (f *fakeExtractor) Extract(ctx context.Context, ref domain.ContentRef, progress extractor.ProgressFunc) (*domain.VideoMetadata, error) {
	return f.meta, f.err
}

type fakeExtractorSource struct {
	ext extractor.Extractor
}

func (f *fakeExtractorSource) ForPlatform(p domain.Platform) (extractor.Extractor, error) {
	if f.ext == nil {
		return nil, errors.New("no extractor registered")
	}
	return f.ext, nil
}

// fakeDownloader returns queued errors in order, then succeeds
type fakeDownloader struct {
	errs  []error
	calls int
	path  string
}

func (f *fakeDownloader) Download(ctx context.Context, req infrastructure.DownloadRequest) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.path, nil
}

func (f *fakeDownloader) FetchThumbnail(ctx context.Context, thumbnailURL, dir, recordID string) {}

func testMeta() *domain.VideoMetadata {
	return &domain.VideoMetadata{
		Title:  "Test Video",
		Author: "Tester",
	}
}

func testRef() domain.ContentRef {
	return domain.ContentRef{
		Platform:     domain.PlatformYouTube,
		CanonicalURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		ContentID:    "dQw4w9WgXcQ",
	}
}

func newTestDownloadManager(t *testing.T, repo domain.JobRepository, dl MediaDownloader, maxRetries int) (*DownloadManager, *registry.Registry) {
	t.Helper()

	reg := registry.New(filepath.Join(t.TempDir(), "downloads.json"), nil)
	config := &domain.DownloadConfig{
		BaseDir:    t.TempDir(),
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	}

	dm := NewDownloadManager(
		repo,
		&fakeNormalizer{ref: testRef()},
		&fakeExtractorSource{ext: &fakeExtractor{platform: domain.PlatformYouTube, meta: testMeta()}},
		dl,
		reg,
		infrastructure.NewNotificationService(false, nil),
		config,
		nil,
	)
	return dm, reg
}

func TestProcessJob_Success(t *testing.T) {
	repo := newMockRepo()
	dl := &fakeDownloader{path: "/out/Test Video.mp4"}
	dm, reg := newTestDownloadManager(t, repo, dl, 3)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	require.NoError(t, repo.Create(job))

	require.NoError(t, dm.ProcessJob(context.Background(), job))

	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, "/out/Test Video.mp4", job.FilePath)
	assert.Equal(t, 1, dl.calls)

	require.NotEmpty(t, job.RecordID)
	_, ok := reg.Get(job.RecordID)
	assert.True(t, ok, "registry record created for the job")
}

func TestProcessJob_RetriesThenSucceeds(t *testing.T) {
	repo := newMockRepo()
	dl := &fakeDownloader{
		errs: []error{errors.New("network blip"), errors.New("another blip")},
		path: "/out/Test Video.mp4",
	}
	dm, _ := newTestDownloadManager(t, repo, dl, 3)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	require.NoError(t, repo.Create(job))

	require.NoError(t, dm.ProcessJob(context.Background(), job))
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 3, dl.calls)
	assert.Equal(t, 2, job.RetryCount)
}

func TestProcessJob_ExhaustsRetries(t *testing.T) {
	repo := newMockRepo()
	dl := &fakeDownloader{
		errs: []error{
			errors.New("fail 1"), errors.New("fail 2"), errors.New("fail 3"),
		},
	}
	dm, reg := newTestDownloadManager(t, repo, dl, 2)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	require.NoError(t, repo.Create(job))

	err := dm.ProcessJob(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Equal(t, 3, dl.calls, "initial attempt plus two retries")

	rec, ok := reg.Get(job.RecordID)
	require.True(t, ok)
	assert.Equal(t, domain.RecordError, rec.Status)
}

func TestProcessJob_ExistingFileIsSuccess(t *testing.T) {
	repo := newMockRepo()
	dl := &fakeDownloader{
		errs: []error{&domain.FileExistsError{Path: "/out/Test Video.mp4"}},
	}
	dm, reg := newTestDownloadManager(t, repo, dl, 3)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	require.NoError(t, repo.Create(job))

	require.NoError(t, dm.ProcessJob(context.Background(), job))
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, "/out/Test Video.mp4", job.FilePath)
	assert.Equal(t, 1, dl.calls, "no retries for an existing file")

	rec, ok := reg.Get(job.RecordID)
	require.True(t, ok)
	assert.Equal(t, domain.RecordCompleted, rec.Status)
}

func TestProcessJob_CancelledDownload(t *testing.T) {
	repo := newMockRepo()
	dl := &fakeDownloader{errs: []error{domain.ErrCancelled}}
	dm, _ := newTestDownloadManager(t, repo, dl, 3)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	require.NoError(t, repo.Create(job))

	require.NoError(t, dm.ProcessJob(context.Background(), job))
	assert.Equal(t, domain.StatusCancelled, job.Status)
	assert.Equal(t, 1, dl.calls, "cancellation is not retried")
}

func TestProcessJob_UnknownPlatform(t *testing.T) {
	repo := newMockRepo()
	dm, _ := newTestDownloadManager(t, repo, &fakeDownloader{}, 0)

	job := domain.NewDownloadJob("https://example.com/v", "myspace", "best")
	err := dm.ProcessJob(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no semaphore")
}

func TestCancelJob_QueuedJob(t *testing.T) {
	repo := newMockRepo()
	dm, _ := newTestDownloadManager(t, repo, &fakeDownloader{}, 0)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	require.NoError(t, repo.Create(job))

	require.NoError(t, dm.CancelJob(job.ID))

	got, err := repo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestCancelJob_NotFound(t *testing.T) {
	dm, _ := newTestDownloadManager(t, newMockRepo(), &fakeDownloader{}, 0)
	assert.Error(t, dm.CancelJob("no-such-id"))
}

func TestCancelJob_TerminalJob(t *testing.T) {
	repo := newMockRepo()
	dm, _ := newTestDownloadManager(t, repo, &fakeDownloader{}, 0)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	job.MarkCompleted("/out/done.mp4")
	require.NoError(t, repo.Create(job))

	assert.Error(t, dm.CancelJob(job.ID))
}

func TestRetryJob(t *testing.T) {
	repo := newMockRepo()
	dm, _ := newTestDownloadManager(t, repo, &fakeDownloader{}, 0)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	job.MarkFailed(errors.New("boom"))
	job.RetryCount = 3
	require.NoError(t, repo.Create(job))

	require.NoError(t, dm.RetryJob(job.ID))

	got, err := repo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Zero(t, got.RetryCount)
	assert.Empty(t, got.ErrorMessage)
}

func TestRetryJob_OnlyFailedJobs(t *testing.T) {
	repo := newMockRepo()
	dm, _ := newTestDownloadManager(t, repo, &fakeDownloader{}, 0)

	job := domain.NewDownloadJob(testRef().CanonicalURL, domain.PlatformYouTube, "best")
	require.NoError(t, repo.Create(job))

	assert.Error(t, dm.RetryJob(job.ID), "queued jobs cannot be retried")
}
