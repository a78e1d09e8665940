package extractor

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/HyIsNoob/khytool/internal/domain"
	"github.com/HyIsNoob/khytool/internal/ytdlp"
)

// YouTubeExtractor extracts YouTube metadata via yt-dlp, falling back
// to an og-tag scrape of the watch page.
type YouTubeExtractor struct {
	runner *ytdlp.Runner
	client *http.Client
}

// NewYouTubeExtractor creates the YouTube extractor
func NewYouTubeExtractor(runner *ytdlp.Runner, requestTimeout time.Duration) *YouTubeExtractor {
	return &YouTubeExtractor{
		runner: runner,
		client: newHTTPClient(requestTimeout),
	}
}

// Platform implements Extractor
func (e *YouTubeExtractor) Platform() domain.Platform {
	return domain.PlatformYouTube
}

// Extract implements Extractor
func (e *YouTubeExtractor) Extract(ctx context.Context, ref domain.ContentRef, progress ProgressFunc) (*domain.VideoMetadata, error) {
	strategies := []strategy{
		{name: "yt-dlp extraction", run: func(ctx context.Context) (*domain.VideoMetadata, error) {
			return e.extractWithYTDLP(ctx, ref)
		}},
		{name: "watch page scrape", run: func(ctx context.Context) (*domain.VideoMetadata, error) {
			return e.extractFromWatchPage(ctx, ref)
		}},
	}
	return runStrategies(ctx, ref, progress, strategies)
}

func (e *YouTubeExtractor) extractWithYTDLP(ctx context.Context, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	// Playlist URLs redirect to their first entry
	info, err := e.runner.ExtractInfo(ctx, ref.CanonicalURL, ytdlp.ExtractOptions{
		SocketTimeout:     20,
		FirstPlaylistItem: strings.Contains(ref.CanonicalURL, "list="),
	})
	if err != nil {
		return nil, err
	}
	return metadataFromInfo(info, ref), nil
}

func (e *YouTubeExtractor) extractFromWatchPage(ctx context.Context, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	html, err := fetchPage(ctx, e.client, ref.CanonicalURL, map[string]string{
		"User-Agent":      desktopUserAgent,
		"Accept-Language": "en-US,en;q=0.9",
	})
	if err != nil {
		return nil, err
	}
	return parseYouTubeWatchPage(html, ref)
}

// parseYouTubeWatchPage builds metadata from og tags alone. No direct
// media URL is available this way; the download stage still goes
// through yt-dlp.
func parseYouTubeWatchPage(html string, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	title := metaContent(html, "og:title")
	if title == "" {
		title = strings.TrimSuffix(htmlTitle(html), " - YouTube")
	}
	if title == "" {
		return nil, fmt.Errorf("watch page yielded no title")
	}

	return &domain.VideoMetadata{
		Title:        title,
		Author:       youtubeChannelName(html),
		ThumbnailURL: metaContent(html, "og:image"),
		WebpageURL:   ref.CanonicalURL,
		Formats:      ResolveFormats(nil),
	}, nil
}

var youtubeChannelRes = []*regexp.Regexp{
	regexp.MustCompile(`<link\s+itemprop="name"\s+content="([^"]+)"`),
	regexp.MustCompile(`"ownerChannelName"\s*:\s*"([^"]+)"`),
}

// youtubeChannelName pulls the channel name out of the watch page.
// Empty when neither marker is present.
func youtubeChannelName(html string) string {
	return firstPattern(html, youtubeChannelRes)
}
