package domain

import "strings"

// Platform represents the source platform for downloads
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformTikTok   Platform = "tiktok"
	PlatformFacebook Platform = "facebook"
)

// ContentRef is a normalized reference to a single piece of content.
// ContentID is "unknown" when no ID could be extracted from the URL;
// extraction then proceeds with the raw URL.
type ContentRef struct {
	Platform     Platform `json:"platform"`
	CanonicalURL string   `json:"canonical_url"`
	ContentID    string   `json:"content_id"`
}

// UnknownContentID is the sentinel used when no content ID matched.
const UnknownContentID = "unknown"

// VideoMetadata is the typed result of a metadata extraction. Raw
// extractor output (yt-dlp JSON, scraped pages) is converted to this
// shape at the extractor boundary and never leaks past it.
type VideoMetadata struct {
	Title           string         `json:"title"`
	Author          string         `json:"author"`
	DurationSeconds int            `json:"duration_seconds"`
	ThumbnailURL    string         `json:"thumbnail_url,omitempty"`
	Formats         []FormatOption `json:"formats"`
	DirectMediaURL  string         `json:"direct_media_url,omitempty"`
	WebpageURL      string         `json:"webpage_url,omitempty"`
}

// FormatOption is a user-selectable download format
type FormatOption struct {
	FormatID     string `json:"format_id"`
	Ext          string `json:"ext"`
	DisplayLabel string `json:"display_label"`
	IsAudioOnly  bool   `json:"is_audio_only"`
}

// DetectPlatform detects the platform from a URL.
// Returns "" for unsupported URLs.
func DetectPlatform(url string) Platform {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(u, "tiktok.com"):
		return PlatformTikTok
	case strings.Contains(u, "facebook.com") || strings.Contains(u, "fb.watch") || strings.Contains(u, "fb.com"):
		return PlatformFacebook
	}
	return ""
}

// ValidatePlatform checks if a platform is valid
func ValidatePlatform(platform Platform) bool {
	return platform == PlatformYouTube || platform == PlatformTikTok || platform == PlatformFacebook
}
