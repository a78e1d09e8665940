package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/internal/domain"
)

// ProgressFunc receives formatted transfer progress. Percent is 0-100
// and never decreases for one transfer; 50 is reported throughout when
// the total size is unknown.
type ProgressFunc func(percent int, speed, downloaded, total, eta string)

const streamChunkSize = 8192

// DirectStreamer downloads a media URL straight over HTTP when an
// extractor surfaced a playable stream, bypassing yt-dlp.
type DirectStreamer struct {
	client *http.Client
	logger *zap.Logger
}

// NewDirectStreamer creates a streamer. The client carries no overall
// timeout; large transfers are bounded by the caller's context.
func NewDirectStreamer(logger *zap.Logger) *DirectStreamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectStreamer{
		client: &http.Client{},
		logger: logger,
	}
}

// Download streams the URL to outputPath in fixed-size chunks. On
// cancellation the partial file is deleted and domain.ErrCancelled is
// returned.
func (d *DirectStreamer) Download(ctx context.Context, rawURL, outputPath, referer string, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", streamUserAgent)
	req.Header.Set("Range", "bytes=0-")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ErrCancelled
		}
		return fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	total := resp.ContentLength
	var written int64
	start := time.Now()
	lastReport := time.Time{}
	buf := make([]byte, streamChunkSize)

	cleanup := func() {
		out.Close()
		os.Remove(outputPath)
	}

	for {
		select {
		case <-ctx.Done():
			cleanup()
			return domain.ErrCancelled
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				cleanup()
				return fmt.Errorf("write failed: %w", werr)
			}
			written += int64(n)

			// Throttle progress reports to avoid flooding listeners
			if onProgress != nil && time.Since(lastReport) >= 200*time.Millisecond {
				lastReport = time.Now()
				d.report(onProgress, written, total, start)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			cleanup()
			if ctx.Err() != nil {
				return domain.ErrCancelled
			}
			return fmt.Errorf("stream read failed: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return err
	}
	if onProgress != nil {
		d.report(onProgress, written, written, start)
	}
	return nil
}

// report converts raw counters into the formatted progress tuple
func (d *DirectStreamer) report(onProgress ProgressFunc, written, total int64, start time.Time) {
	elapsed := time.Since(start).Seconds()
	var speed float64
	if elapsed > 0 {
		speed = float64(written) / elapsed
	}

	percent := 50 // indeterminate without a content length
	totalStr := "unknown"
	eta := ""
	if total > 0 {
		percent = int(written * 100 / total)
		if percent > 100 {
			percent = 100
		}
		totalStr = formatBytes(total)
		if speed > 0 && total > written {
			eta = formatETA(int(float64(total-written) / speed))
		}
	}

	onProgress(percent, formatSpeed(speed), formatBytes(written), totalStr, eta)
}

// formatBytes renders a byte count with a sensible unit
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// formatSpeed renders bytes/sec with a sensible unit
func formatSpeed(bps float64) string {
	switch {
	case bps >= 1<<20:
		return fmt.Sprintf("%.1f MB/s", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.1f KB/s", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0f B/s", bps)
	}
}

// formatETA renders seconds as s/m/h
func formatETA(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}
