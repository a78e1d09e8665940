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

// FacebookExtractor extracts Facebook video metadata, first via yt-dlp
// and then by scraping the watch page across several URL variants.
type FacebookExtractor struct {
	runner *ytdlp.Runner
	client *http.Client
}

// NewFacebookExtractor creates the Facebook extractor
func NewFacebookExtractor(runner *ytdlp.Runner, requestTimeout time.Duration) *FacebookExtractor {
	return &FacebookExtractor{
		runner: runner,
		client: newHTTPClient(requestTimeout),
	}
}

// Platform implements Extractor
func (e *FacebookExtractor) Platform() domain.Platform {
	return domain.PlatformFacebook
}

// Extract implements Extractor
func (e *FacebookExtractor) Extract(ctx context.Context, ref domain.ContentRef, progress ProgressFunc) (*domain.VideoMetadata, error) {
	strategies := []strategy{
		{name: "yt-dlp extraction", run: func(ctx context.Context) (*domain.VideoMetadata, error) {
			return e.extractWithYTDLP(ctx, ref)
		}},
		{name: "watch page scrape", run: func(ctx context.Context) (*domain.VideoMetadata, error) {
			return e.extractFromWatchPage(ctx, ref, progress)
		}},
	}
	return runStrategies(ctx, ref, progress, strategies)
}

func (e *FacebookExtractor) extractWithYTDLP(ctx context.Context, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	info, err := e.runner.ExtractInfo(ctx, ref.CanonicalURL, ytdlp.ExtractOptions{
		UserAgent:          desktopUserAgent,
		Referer:            "https://www.facebook.com/",
		SocketTimeout:      30,
		NoCheckCertificate: true,
	})
	if err != nil {
		return nil, err
	}
	return metadataFromInfo(info, ref), nil
}

// facebookURLVariants lists the URL shapes tried for a video ID.
// Different shapes expose different markup for the same content.
func facebookURLVariants(ref domain.ContentRef) []string {
	variants := []string{}
	if isDigits(ref.ContentID) {
		id := ref.ContentID
		variants = append(variants,
			"https://www.facebook.com/watch/?v="+id,
			"https://www.facebook.com/watch/v/?v="+id,
			"https://www.facebook.com/video.php?v="+id,
			"https://www.facebook.com/reel/"+id,
		)
	}
	variants = append(variants, ref.CanonicalURL)
	return variants
}

var (
	fbHDSrcRe = regexp.MustCompile(`"hd_src":"(https:\\/\\/[^"]*)"`)
	fbSDSrcRe = regexp.MustCompile(`"sd_src":"(https:\\/\\/[^"]*)"`)

	fbJSONMediaRes = []*regexp.Regexp{
		regexp.MustCompile(`"playable_url_quality_hd":"([^"]+)"`),
		regexp.MustCompile(`"playable_url":"([^"]+)"`),
		regexp.MustCompile(`"browser_native_hd_url":"([^"]+)"`),
		regexp.MustCompile(`"browser_native_sd_url":"([^"]+)"`),
	}

	fbGenericMediaRes = []*regexp.Regexp{
		regexp.MustCompile(`"(https:[^"]+\.mp4[^"]*)"`),
		regexp.MustCompile(`"(https:[^"]+video\.[^"]*)"`),
		regexp.MustCompile(`"(https:[^"]*fbcdn[^"]*\.mp4[^"]*)"`),
	}

	fbUploaderRes = []*regexp.Regexp{
		regexp.MustCompile(`"ownerName":"([^"]+)"`),
		regexp.MustCompile(`"publisher_name":"([^"]+)"`),
		regexp.MustCompile(`"publisher":\{"name":"([^"]+)"`),
	}

	fbThumbnailRes = []*regexp.Regexp{
		regexp.MustCompile(`"thumbnailUrl":"([^"]+)"`),
		regexp.MustCompile(`"thumbnailImage":\{"uri":"([^"]+)"`),
		regexp.MustCompile(`"image":\{"uri":"([^"]+)"`),
	}

	fbNameRe = regexp.MustCompile(`"name":"([^"]+)"`)
)

// extractFromWatchPage scrapes the first URL variant that yields a
// playable media URL.
func (e *FacebookExtractor) extractFromWatchPage(ctx context.Context, ref domain.ContentRef, progress ProgressFunc) (*domain.VideoMetadata, error) {
	headers := map[string]string{
		"User-Agent":      desktopUserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}

	var lastErr error
	for _, variant := range facebookURLVariants(ref) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(fmt.Sprintf("Fetching %s", variant))
		}

		html, err := fetchPage(ctx, e.client, variant, headers)
		if err != nil {
			lastErr = err
			continue
		}

		meta, err := parseFacebookWatchPage(html, ref)
		if err != nil {
			lastErr = err
			continue
		}
		return meta, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no URL variants to try")
	}
	return nil, fmt.Errorf("all page variants failed: %w", lastErr)
}

// parseFacebookWatchPage pulls media URL, title, uploader and
// thumbnail out of watch-page markup. Search order for the media URL:
// hd_src, sd_src, known JSON fields, <video> tag, generic patterns.
func parseFacebookWatchPage(html string, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	mediaURL := firstPattern(html, []*regexp.Regexp{fbHDSrcRe, fbSDSrcRe})
	if mediaURL == "" {
		mediaURL = firstPattern(html, fbJSONMediaRes)
	}
	if mediaURL == "" {
		mediaURL = videoTagSrc(html)
	}
	if mediaURL == "" {
		mediaURL = firstPattern(html, fbGenericMediaRes)
	}
	if mediaURL == "" {
		return nil, fmt.Errorf("no media URL on page")
	}

	return &domain.VideoMetadata{
		Title:          facebookTitle(html),
		Author:         facebookUploader(html),
		ThumbnailURL:   unescapeMediaURL(firstPattern(html, fbThumbnailRes)),
		DirectMediaURL: unescapeMediaURL(mediaURL),
		WebpageURL:     ref.CanonicalURL,
		Formats:        ResolveFormats(nil),
	}, nil
}

// facebookTitle tries og:title, the document title, then a bare JSON
// name field, stripping the site suffixes Facebook appends.
func facebookTitle(html string) string {
	title := metaContent(html, "og:title")
	if title == "" {
		title = htmlTitle(html)
	}
	if title == "" {
		if m := fbNameRe.FindStringSubmatch(html); m != nil {
			title = m[1]
		}
	}
	title = strings.TrimSuffix(title, " | Facebook")
	title = strings.TrimSuffix(title, " - Facebook Watch")
	return strings.TrimSpace(title)
}

func facebookUploader(html string) string {
	if name := metaContent(html, "og:site_name"); name != "" && name != "Facebook" && name != "Facebook Watch" {
		return name
	}
	return firstPattern(html, fbUploaderRes)
}
