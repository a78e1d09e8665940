package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/HyIsNoob/khytool/internal/domain"
)

// Normalizer resolves share links and extracts content IDs. Short-link
// resolution is the only network step; everything else is pure string
// work on ordered regex chains, most specific pattern first.
type Normalizer struct {
	client *http.Client

	// resolve follows a short link to its destination; overridable in tests
	resolve func(string) string
}

// NewNormalizer creates a normalizer with the given redirect timeout
func NewNormalizer(redirectTimeout time.Duration) *Normalizer {
	if redirectTimeout <= 0 {
		redirectTimeout = 10 * time.Second
	}
	n := &Normalizer{
		client: &http.Client{Timeout: redirectTimeout},
	}
	n.resolve = n.resolveRedirect
	return n
}

var (
	youtubeIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/shorts/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/embed/([A-Za-z0-9_-]{11})`),
	}

	tiktokIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/@[^/]+/video/(\d+)`),
		regexp.MustCompile(`/video/(\d+)`),
		regexp.MustCompile(`/v/(\d+)`),
		regexp.MustCompile(`/embed/v2/(\d+)`),
		regexp.MustCompile(`/embed/(\d+)`),
	}

	facebookIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/videos/(\d+)`),
		regexp.MustCompile(`[?&]v=(\d+)`),
		regexp.MustCompile(`watch/?\?v=(\d+)`),
		regexp.MustCompile(`/reel/(\d+)`),
		regexp.MustCompile(`[?&]idorvanity=(\d+)`),
		regexp.MustCompile(`/(\d{15,})`),
	}

	trailingDigitsRe = regexp.MustCompile(`/(\d+)/?(?:\?.*)?$`)
)

// tiktokShortHosts are share-link hosts that must be resolved before
// any ID pattern can match.
var tiktokShortHosts = []string{"vm.tiktok.com", "vt.tiktok.com"}

// Normalize turns a raw pasted URL into a ContentRef. Unsupported URLs
// get an error; supported URLs always produce a ref, falling back to
// ContentID "unknown" so extraction can still try the raw URL.
func (n *Normalizer) Normalize(rawURL string) (domain.ContentRef, error) {
	rawURL = strings.TrimSpace(rawURL)

	platform := domain.DetectPlatform(rawURL)
	if platform == "" {
		return domain.ContentRef{}, fmt.Errorf("unsupported URL: %s", rawURL)
	}

	resolved := rawURL
	if platform == domain.PlatformTikTok && isTikTokShortLink(rawURL) {
		resolved = n.resolve(rawURL)
	}

	var id string
	switch platform {
	case domain.PlatformYouTube:
		id = matchFirst(youtubeIDPatterns, resolved)
	case domain.PlatformTikTok:
		id = extractTikTokID(resolved)
	case domain.PlatformFacebook:
		id = matchFirst(facebookIDPatterns, resolved)
	}

	canonical := resolved
	if id == "" {
		id = domain.UnknownContentID
	} else if platform == domain.PlatformYouTube || isDigits(id) {
		// Short-code IDs (unresolved share links) keep the original URL;
		// a reconstructed /video/<code> would not round-trip.
		canonical = CanonicalURL(platform, id)
	}

	return domain.ContentRef{
		Platform:     platform,
		CanonicalURL: canonical,
		ContentID:    id,
	}, nil
}

// CanonicalURL reconstructs a canonical watch URL from platform and ID
func CanonicalURL(platform domain.Platform, id string) string {
	switch platform {
	case domain.PlatformYouTube:
		return "https://www.youtube.com/watch?v=" + id
	case domain.PlatformTikTok:
		return "https://www.tiktok.com/video/" + id
	case domain.PlatformFacebook:
		return "https://www.facebook.com/watch/?v=" + id
	}
	return id
}

// resolveRedirect follows a share link to its final location. On any
// failure the original URL is returned unchanged.
func (n *Normalizer) resolveRedirect(rawURL string) string {
	ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return rawURL
	}
	defer resp.Body.Close()

	final := resp.Request.URL.String()
	if final == "" {
		return rawURL
	}
	return final
}

func isTikTokShortLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	for _, h := range tiktokShortHosts {
		if host == h {
			return true
		}
	}
	return false
}

// extractTikTokID works through the TikTok pattern chain, then falls
// back to the short-code path segment and finally any trailing digits.
func extractTikTokID(rawURL string) string {
	if id := matchFirst(tiktokIDPatterns, rawURL); id != "" {
		return id
	}

	if isTikTokShortLink(rawURL) {
		if u, err := url.Parse(rawURL); err == nil {
			segments := strings.Split(strings.Trim(u.Path, "/"), "/")
			if last := segments[len(segments)-1]; last != "" {
				return last
			}
		}
	}

	if m := trailingDigitsRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func matchFirst(patterns []*regexp.Regexp, s string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}
