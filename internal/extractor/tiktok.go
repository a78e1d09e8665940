package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/HyIsNoob/khytool/internal/domain"
	"github.com/HyIsNoob/khytool/internal/ytdlp"
)

// TikTokExtractor extracts TikTok metadata through an ordered chain:
// yt-dlp emulation profiles, the web item-detail API, the embed page,
// then the mobile share page.
type TikTokExtractor struct {
	runner  *ytdlp.Runner
	client  *http.Client
	timeout time.Duration
}

// NewTikTokExtractor creates the TikTok extractor
func NewTikTokExtractor(runner *ytdlp.Runner, requestTimeout time.Duration) *TikTokExtractor {
	return &TikTokExtractor{
		runner:  runner,
		client:  newHTTPClient(requestTimeout),
		timeout: requestTimeout,
	}
}

// Platform implements Extractor
func (e *TikTokExtractor) Platform() domain.Platform {
	return domain.PlatformTikTok
}

// Extract implements Extractor
func (e *TikTokExtractor) Extract(ctx context.Context, ref domain.ContentRef, progress ProgressFunc) (*domain.VideoMetadata, error) {
	strategies := []strategy{
		{name: "yt-dlp extraction", run: func(ctx context.Context) (*domain.VideoMetadata, error) {
			return e.extractWithYTDLP(ctx, ref, progress)
		}},
		{name: "TikTok web API", run: func(ctx context.Context) (*domain.VideoMetadata, error) {
			return e.extractFromWebAPI(ctx, ref)
		}},
		{name: "embed page scrape", run: func(ctx context.Context) (*domain.VideoMetadata, error) {
			return e.extractFromEmbedPage(ctx, ref)
		}},
		{name: "mobile page scrape", run: func(ctx context.Context) (*domain.VideoMetadata, error) {
			return e.extractFromMobilePage(ctx, ref)
		}},
	}
	return runStrategies(ctx, ref, progress, strategies)
}

// ytdlpProfile is one emulation attempt: headers plus extractor args
// that make yt-dlp look like a specific client.
type ytdlpProfile struct {
	name string
	opts ytdlp.ExtractOptions
}

// tiktokProfiles builds the emulation profiles, most capable first.
// Device IDs are randomized per call so repeated attempts do not look
// like the same client.
func tiktokProfiles() []ytdlpProfile {
	deviceID := randomDeviceID()
	return []ytdlpProfile{
		{
			name: "chrome desktop",
			opts: ytdlp.ExtractOptions{
				UserAgent:     desktopUserAgent,
				Referer:       "https://www.tiktok.com/",
				SocketTimeout: 20,
				ExtractorArgs: "tiktok:app_name=trill;app_version=30.8.0;device_id=" + deviceID,
				Headers: map[string]string{
					"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
					"Accept-Language": "en-US,en;q=0.9",
					"Sec-Fetch-Dest":  "document",
					"Sec-Fetch-Mode":  "navigate",
					"Sec-Fetch-Site":  "none",
				},
			},
		},
		{
			name: "mobile safari",
			opts: ytdlp.ExtractOptions{
				UserAgent:     mobileUserAgent,
				Referer:       "https://www.tiktok.com/",
				SocketTimeout: 15,
				ExtractorArgs: "tiktok:device_id=" + deviceID,
			},
		},
		{
			name: "tiktok web api",
			opts: ytdlp.ExtractOptions{
				UserAgent:     desktopUserAgent,
				SocketTimeout: 15,
				ExtractorArgs: "tiktok:api_hostname=api22-normal-c-useast2a.tiktokv.com;use_api=1",
			},
		},
		{
			name: "basic",
			opts: ytdlp.ExtractOptions{
				SocketTimeout: 10,
			},
		},
	}
}

// extractWithYTDLP tries each emulation profile as its own sub-attempt
func (e *TikTokExtractor) extractWithYTDLP(ctx context.Context, ref domain.ContentRef, progress ProgressFunc) (*domain.VideoMetadata, error) {
	var lastErr error
	for _, p := range tiktokProfiles() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(fmt.Sprintf("yt-dlp profile: %s", p.name))
		}

		info, err := e.runner.ExtractInfo(ctx, ref.CanonicalURL, p.opts)
		if err != nil {
			lastErr = err
			continue
		}
		return metadataFromInfo(info, ref), nil
	}
	return nil, fmt.Errorf("all yt-dlp profiles failed: %w", lastErr)
}

// itemDetailResponse is the slice of the web API response we consume
type itemDetailResponse struct {
	ItemInfo struct {
		ItemStruct struct {
			Desc   string `json:"desc"`
			Author struct {
				Nickname string `json:"nickname"`
				UniqueID string `json:"uniqueId"`
			} `json:"author"`
			Video struct {
				Duration int    `json:"duration"`
				Cover    string `json:"cover"`
				PlayAddr string `json:"playAddr"`
			} `json:"video"`
		} `json:"itemStruct"`
	} `json:"itemInfo"`
}

// extractFromWebAPI queries the public item-detail endpoint
func (e *TikTokExtractor) extractFromWebAPI(ctx context.Context, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	if !isDigits(ref.ContentID) {
		return nil, fmt.Errorf("no numeric content ID")
	}

	apiURL := "https://www.tiktok.com/api/item/detail/?itemId=" + ref.ContentID
	body, err := fetchPage(ctx, e.client, apiURL, map[string]string{
		"User-Agent": desktopUserAgent,
		"Referer":    "https://www.tiktok.com/",
		"Accept":     "application/json",
	})
	if err != nil {
		return nil, err
	}

	var resp itemDetailResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("unexpected API response: %w", err)
	}

	item := resp.ItemInfo.ItemStruct
	if item.Desc == "" && item.Video.PlayAddr == "" {
		return nil, fmt.Errorf("empty item detail")
	}

	author := item.Author.Nickname
	if author == "" {
		author = item.Author.UniqueID
	}
	return &domain.VideoMetadata{
		Title:           item.Desc,
		Author:          author,
		DurationSeconds: item.Video.Duration,
		ThumbnailURL:    item.Video.Cover,
		DirectMediaURL:  unescapeMediaURL(item.Video.PlayAddr),
		WebpageURL:      ref.CanonicalURL,
		Formats:         ResolveFormats(nil),
	}, nil
}

var (
	embedJSONRe = regexp.MustCompile(`(?s)<script[^>]+type="application/json"[^>]*>(.*?)</script>`)

	tiktokEscapedPlayAddrRe = regexp.MustCompile(`"playAddr":\s*"([^"]+)"`)
	tiktokContentURLRe      = regexp.MustCompile(`"contentUrl":\s*"([^"]+)"`)
	tiktokDownloadAddrRe    = regexp.MustCompile(`"downloadAddr":\s*"([^"]+)"`)

	// Generic last-resort media URL patterns, ordered by specificity
	tiktokGenericMediaRes = []*regexp.Regexp{
		regexp.MustCompile(`"(https:[^"]+\.mp4[^"]*)"`),
		regexp.MustCompile(`"(https:[^"]+/play/[^"]*)"`),
		regexp.MustCompile(`"(https:[^"]*tiktokcdn[^"]*)"`),
	}
)

// extractFromEmbedPage scrapes the embed/v2 page. It tries the inline
// JSON blob first, then the video tag, then escaped playAddr fields,
// then the generic media patterns.
func (e *TikTokExtractor) extractFromEmbedPage(ctx context.Context, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	if ref.ContentID == domain.UnknownContentID {
		return nil, fmt.Errorf("no content ID for embed page")
	}

	embedURL := "https://www.tiktok.com/embed/v2/" + ref.ContentID
	html, err := fetchPage(ctx, e.client, embedURL, map[string]string{
		"User-Agent": desktopUserAgent,
		"Referer":    "https://www.tiktok.com/",
	})
	if err != nil {
		return nil, err
	}

	meta := &domain.VideoMetadata{
		Title:        metaContent(html, "og:title"),
		Author:       metaContent(html, "og:author"),
		ThumbnailURL: metaContent(html, "og:image"),
		WebpageURL:   ref.CanonicalURL,
		Formats:      ResolveFormats(nil),
	}

	mediaURL := mediaURLFromEmbedJSON(html)
	if mediaURL == "" {
		mediaURL = videoTagSrc(html)
	}
	if mediaURL == "" {
		mediaURL = firstPattern(html, []*regexp.Regexp{tiktokEscapedPlayAddrRe})
	}
	if mediaURL == "" {
		mediaURL = firstPattern(html, tiktokGenericMediaRes)
	}
	if mediaURL == "" && meta.Title == "" {
		return nil, fmt.Errorf("embed page yielded nothing")
	}

	meta.DirectMediaURL = unescapeMediaURL(mediaURL)
	return meta, nil
}

// mediaURLFromEmbedJSON digs contentUrl/playAddr out of the embed
// page's application/json script blob.
func mediaURLFromEmbedJSON(html string) string {
	m := embedJSONRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	blob := m[1]
	if u := firstPattern(blob, []*regexp.Regexp{tiktokContentURLRe, tiktokEscapedPlayAddrRe}); u != "" {
		return u
	}
	return ""
}

// extractFromMobilePage scrapes the vm.tiktok.com share page with a
// mobile user agent.
func (e *TikTokExtractor) extractFromMobilePage(ctx context.Context, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	if ref.ContentID == domain.UnknownContentID {
		return nil, fmt.Errorf("no content ID for mobile page")
	}

	mobileURL := "https://vm.tiktok.com/" + ref.ContentID
	html, err := fetchPage(ctx, e.client, mobileURL, map[string]string{
		"User-Agent": mobileUserAgent,
	})
	if err != nil {
		return nil, err
	}
	return parseTikTokMobilePage(html, ref)
}

// parseTikTokMobilePage is the pure parsing half of the mobile
// strategy, separated so it can be exercised against fixture HTML.
func parseTikTokMobilePage(html string, ref domain.ContentRef) (*domain.VideoMetadata, error) {
	meta := &domain.VideoMetadata{
		Title:        metaContent(html, "og:title"),
		Author:       metaContent(html, "og:author"),
		ThumbnailURL: metaContent(html, "og:image"),
		WebpageURL:   ref.CanonicalURL,
		Formats:      ResolveFormats(nil),
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(htmlTitle(html), " | TikTok")
	}

	mediaURL := videoTagSrc(html)
	if mediaURL == "" {
		mediaURL = firstPattern(html, []*regexp.Regexp{tiktokEscapedPlayAddrRe, tiktokDownloadAddrRe})
	}
	if mediaURL == "" {
		mediaURL = firstPattern(html, tiktokGenericMediaRes)
	}
	if mediaURL == "" && meta.Title == "" {
		return nil, fmt.Errorf("mobile page yielded nothing")
	}

	meta.DirectMediaURL = unescapeMediaURL(mediaURL)
	return meta, nil
}

// randomDeviceID produces a 19-digit device ID like the native apps use
func randomDeviceID() string {
	var b strings.Builder
	b.WriteByte(byte('1' + rand.Intn(9)))
	for i := 0; i < 18; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	return b.String()
}
