package infrastructure

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyIsNoob/khytool/internal/domain"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeFilename("a/b\\c"))
	assert.Equal(t, "what_ really_", sanitizeFilename("what? really?"))
	assert.Equal(t, "plain title", sanitizeFilename("plain title"))
	assert.Equal(t, "_video_", sanitizeFilename("<video>"))
}

func TestIsFileLockError(t *testing.T) {
	assert.True(t, isFileLockError(errors.New("ERROR: unable to rename file: Permission denied")))
	assert.True(t, isFileLockError(errors.New("The process cannot access the file because the file in use")))
	assert.True(t, isFileLockError(errors.New("Unable to rename output")))
	assert.False(t, isFileLockError(errors.New("HTTP Error 403: Forbidden")))
	assert.False(t, isFileLockError(nil))
}

func TestBuildYTDLPOptions(t *testing.T) {
	ref := domain.ContentRef{Platform: domain.PlatformYouTube}

	opts := buildYTDLPOptions(DownloadRequest{Ref: ref, FormatID: "best", OutputDir: "/out"})
	assert.Equal(t, "bestvideo+bestaudio/best", opts.Format)
	assert.Equal(t, "mp4", opts.MergeFormat)
	assert.Equal(t, filepath.Join("/out", "%(title)s.%(ext)s"), opts.OutputTemplate)

	opts = buildYTDLPOptions(DownloadRequest{Ref: ref, FormatID: "bestaudio", OutputDir: "/out"})
	assert.True(t, opts.ExtractAudio)
	assert.Equal(t, "mp3", opts.AudioFormat)
	assert.Equal(t, "320K", opts.AudioQuality)
	assert.Contains(t, opts.OutputTemplate, "_Audio")

	opts = buildYTDLPOptions(DownloadRequest{Ref: ref, FormatID: "137", OutputDir: "/out"})
	assert.Equal(t, "137+bestaudio/best", opts.Format)
}

func TestBuildYTDLPOptions_PlatformHeaders(t *testing.T) {
	opts := buildYTDLPOptions(DownloadRequest{
		Ref:      domain.ContentRef{Platform: domain.PlatformTikTok},
		FormatID: "best",
	})
	assert.Equal(t, "https://www.tiktok.com/", opts.Referer)
	assert.NotEmpty(t, opts.UserAgent)
	assert.True(t, opts.NoCheckCertificate)

	opts = buildYTDLPOptions(DownloadRequest{
		Ref:      domain.ContentRef{Platform: domain.PlatformYouTube},
		FormatID: "best",
	})
	assert.Empty(t, opts.Referer)
}

func TestFindRecentFile(t *testing.T) {
	dir := t.TempDir()

	oldFile := filepath.Join(dir, "old.mp4")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0644))
	past := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(oldFile, past, past))

	newFile := filepath.Join(dir, "new.mp4")
	require.NoError(t, os.WriteFile(newFile, []byte("new"), 0644))

	partFile := filepath.Join(dir, "partial.mp4.part")
	require.NoError(t, os.WriteFile(partFile, []byte("part"), 0644))

	got := findRecentFile(dir, time.Now(), recentFileWindow)
	assert.Equal(t, newFile, got, "newest non-partial file within the window wins")
}

func TestFindRecentFile_NothingRecent(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "stale.mp4")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(oldFile, past, past))

	assert.Empty(t, findRecentFile(dir, time.Now(), recentFileWindow))
	assert.Empty(t, findRecentFile(filepath.Join(dir, "missing"), time.Now(), recentFileWindow))
}

func TestFindExistingFile(t *testing.T) {
	dir := t.TempDir()
	m := &MediaDownloader{}

	existing := filepath.Join(dir, "My Video.mp4")
	require.NoError(t, os.WriteFile(existing, []byte("data"), 0644))

	req := DownloadRequest{
		Meta:      &domain.VideoMetadata{Title: "My Video"},
		FormatID:  "best",
		OutputDir: dir,
	}
	assert.Equal(t, existing, m.findExistingFile(req))

	req.FormatID = "bestaudio"
	assert.Empty(t, m.findExistingFile(req), "audio request does not match the mp4")

	audio := filepath.Join(dir, "My Video_Audio.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("data"), 0644))
	assert.Equal(t, audio, m.findExistingFile(req))
}

func TestFindExistingFile_IgnoresEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	m := &MediaDownloader{}

	empty := filepath.Join(dir, "Stub.mp4")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	req := DownloadRequest{
		Meta:      &domain.VideoMetadata{Title: "Stub"},
		FormatID:  "best",
		OutputDir: dir,
	}
	assert.Empty(t, m.findExistingFile(req), "zero-byte leftovers are not treated as finished")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))

	assert.Equal(t, "100 B/s", formatSpeed(100))
	assert.Equal(t, "1.0 KB/s", formatSpeed(1024))
	assert.Equal(t, "3.0 MB/s", formatSpeed(3*1024*1024))

	assert.Equal(t, "45s", formatETA(45))
	assert.Equal(t, "2m 5s", formatETA(125))
	assert.Equal(t, "1h 1m", formatETA(3660))
}
