package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/internal/domain"
	"github.com/HyIsNoob/khytool/internal/registry"
	"github.com/HyIsNoob/khytool/internal/ytdlp"
)

const streamUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// fileLockRetryWait is how long to wait before the single retry after
// a rename/merge failed because the target was held open.
const fileLockRetryWait = 3 * time.Second

// recentFileWindow bounds the fallback search for the output file when
// yt-dlp never printed a destination line.
const recentFileWindow = 30 * time.Second

// MediaDownloader runs one download end to end: direct stream when the
// extractor surfaced a playable URL, yt-dlp otherwise, with registry
// progress updates along the way.
type MediaDownloader struct {
	runner   *ytdlp.Runner
	streamer *DirectStreamer
	reg      *registry.Registry
	client   *http.Client
	logger   *zap.Logger
}

// NewMediaDownloader creates a downloader
func NewMediaDownloader(runner *ytdlp.Runner, reg *registry.Registry, logger *zap.Logger) *MediaDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaDownloader{
		runner:   runner,
		streamer: NewDirectStreamer(logger),
		reg:      reg,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// DownloadRequest describes one download
type DownloadRequest struct {
	Ref       domain.ContentRef
	Meta      *domain.VideoMetadata
	FormatID  string
	OutputDir string
	RecordID  string
}

// Download performs the transfer and returns the final output path.
// Cancellation marks the record paused and returns domain.ErrCancelled;
// pre-existing files return a FileExistsError without transferring.
func (m *MediaDownloader) Download(ctx context.Context, req DownloadRequest) (string, error) {
	if req.FormatID == "" {
		req.FormatID = "best"
	}

	if existing := m.findExistingFile(req); existing != "" {
		return "", &domain.FileExistsError{Path: existing}
	}

	onProgress := m.progressReporter(req.RecordID)

	// Direct path: stream the extracted media URL when the default
	// format was requested. Failures fall back to yt-dlp.
	if req.Meta != nil && req.Meta.DirectMediaURL != "" && req.FormatID == "best" {
		path, err := m.downloadDirect(ctx, req, onProgress)
		if err == nil {
			return m.finish(req, path)
		}
		if errors.Is(err, domain.ErrCancelled) {
			m.reg.MarkPaused(req.RecordID)
			return "", domain.ErrCancelled
		}
		m.logger.Warn("Direct stream failed, falling back to yt-dlp",
			zap.String("record_id", req.RecordID), zap.Error(err))
	}

	path, err := m.downloadWithYTDLP(ctx, req, onProgress)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrCancelled) {
			m.reg.MarkPaused(req.RecordID)
			return "", domain.ErrCancelled
		}
		return "", err
	}
	return m.finish(req, path)
}

// finish resets the file mtime so the result sorts as new, then marks
// the record completed.
func (m *MediaDownloader) finish(req DownloadRequest, path string) (string, error) {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		m.logger.Debug("Failed to reset file mtime", zap.String("path", path), zap.Error(err))
	}
	m.reg.MarkCompleted(req.RecordID, path)
	return path, nil
}

func (m *MediaDownloader) downloadDirect(ctx context.Context, req DownloadRequest, onProgress ProgressFunc) (string, error) {
	name := sanitizeFilename(req.Meta.Title)
	if name == "" {
		name = req.Ref.ContentID
	}
	outputPath := filepath.Join(req.OutputDir, name+".mp4")

	referer := refererFor(req.Ref.Platform)
	if err := m.streamer.Download(ctx, req.Meta.DirectMediaURL, outputPath, referer, onProgress); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (m *MediaDownloader) downloadWithYTDLP(ctx context.Context, req DownloadRequest, onProgress ProgressFunc) (string, error) {
	opts := buildYTDLPOptions(req)
	started := time.Now()

	progress := func(p ytdlp.Progress) {
		percent := 50
		eta := ""
		total := "unknown"
		if p.TotalBytes > 0 {
			percent = int(p.DownloadedBytes * 100 / p.TotalBytes)
			if percent > 100 {
				percent = 100
			}
			total = formatBytes(p.TotalBytes)
			eta = formatETA(p.ETASeconds)
		}
		onProgress(percent, formatSpeed(p.Speed), formatBytes(p.DownloadedBytes), total, eta)
	}

	dest, err := m.runner.Download(ctx, downloadURL(req), opts, progress)
	if err != nil && isFileLockError(err) {
		// The merge target was still held open (typically a virus
		// scanner or player). One retry after a short wait.
		m.logger.Warn("Output file locked, retrying once",
			zap.String("record_id", req.RecordID), zap.Error(err))
		select {
		case <-time.After(fileLockRetryWait):
		case <-ctx.Done():
			return "", domain.ErrCancelled
		}
		dest, err = m.runner.Download(ctx, downloadURL(req), opts, progress)
	}
	if err != nil {
		if errors.Is(err, ytdlp.ErrAlreadyDownloaded) {
			return "", &domain.FileExistsError{Path: dest}
		}
		if strings.Contains(err.Error(), "already exists") {
			return "", &domain.FileExistsError{Path: dest}
		}
		return "", err
	}

	if dest == "" {
		dest = findRecentFile(req.OutputDir, started, recentFileWindow)
	}
	if dest == "" {
		return "", fmt.Errorf("download finished but output file not found in %s", req.OutputDir)
	}
	return dest, nil
}

// progressReporter forwards progress to the registry, clamping percent
// so it never decreases for one record.
func (m *MediaDownloader) progressReporter(recordID string) ProgressFunc {
	maxPercent := 0
	return func(percent int, speed, downloaded, total, eta string) {
		if percent < maxPercent {
			percent = maxPercent
		} else {
			maxPercent = percent
		}
		m.reg.SetProgress(recordID, percent, speed, downloaded, total, eta)
	}
}

// FetchThumbnail downloads the thumbnail next to the media and records
// it on the registry entry. Failures are logged, never fatal.
func (m *MediaDownloader) FetchThumbnail(ctx context.Context, thumbnailURL, dir, recordID string) {
	if thumbnailURL == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", streamUserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("Thumbnail fetch failed", zap.String("url", thumbnailURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	path := filepath.Join(dir, recordID+".jpg")
	out, err := os.Create(path)
	if err != nil {
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(resp.Body, 5<<20)); err != nil {
		os.Remove(path)
		return
	}
	m.reg.SetThumbnail(recordID, path)
}

// downloadURL prefers the page URL yt-dlp understands best
func downloadURL(req DownloadRequest) string {
	if req.Meta != nil && req.Meta.WebpageURL != "" {
		return req.Meta.WebpageURL
	}
	return req.Ref.CanonicalURL
}

// buildYTDLPOptions maps a format choice onto yt-dlp flags
func buildYTDLPOptions(req DownloadRequest) ytdlp.DownloadOptions {
	opts := ytdlp.DownloadOptions{
		OutputTemplate: filepath.Join(req.OutputDir, "%(title)s.%(ext)s"),
		Retries:        10,
	}

	switch req.FormatID {
	case "best":
		opts.Format = "bestvideo+bestaudio/best"
		opts.MergeFormat = "mp4"
	case "bestaudio":
		opts.Format = "bestaudio/best"
		opts.ExtractAudio = true
		opts.AudioFormat = "mp3"
		opts.AudioQuality = "320K"
		opts.OutputTemplate = filepath.Join(req.OutputDir, "%(title)s_Audio.%(ext)s")
	default:
		opts.Format = req.FormatID + "+bestaudio/best"
		opts.MergeFormat = "mp4"
	}

	if req.Ref.Platform == domain.PlatformTikTok || req.Ref.Platform == domain.PlatformFacebook {
		opts.UserAgent = streamUserAgent
		opts.Referer = refererFor(req.Ref.Platform)
		opts.NoCheckCertificate = true
	}
	return opts
}

func refererFor(platform domain.Platform) string {
	switch platform {
	case domain.PlatformTikTok:
		return "https://www.tiktok.com/"
	case domain.PlatformFacebook:
		return "https://www.facebook.com/"
	}
	return ""
}

// findExistingFile looks for a finished file matching the title before
// any transfer starts.
func (m *MediaDownloader) findExistingFile(req DownloadRequest) string {
	if req.Meta == nil || req.Meta.Title == "" {
		return ""
	}
	base := sanitizeFilename(req.Meta.Title)
	if base == "" {
		return ""
	}

	var candidates []string
	if req.FormatID == "bestaudio" {
		candidates = []string{base + "_Audio.mp3", base + ".mp3"}
	} else {
		candidates = []string{base + ".mp4", base + ".webm", base + ".mkv"}
	}

	for _, name := range candidates {
		path := filepath.Join(req.OutputDir, name)
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return path
		}
	}
	return ""
}

// findRecentFile returns the newest file in dir modified within window
// of start. Used when yt-dlp produced a file but never printed its
// destination.
func findRecentFile(dir string, start time.Time, window time.Duration) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	cutoff := start.Add(-window)
	var newest string
	var newestTime time.Time

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".part") || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	return newest
}

// sanitizeFilename strips characters that are invalid in file names
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return strings.TrimSpace(replacer.Replace(name))
}

// isFileLockError matches the rename/merge failures worth one retry
func isFileLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"file in use", "Permission denied", "Unable to rename"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
