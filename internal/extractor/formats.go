package extractor

import (
	"fmt"
	"sort"

	"github.com/HyIsNoob/khytool/internal/domain"
	"github.com/HyIsNoob/khytool/internal/ytdlp"
)

// resolutionBuckets are the video heights offered to the user
var resolutionBuckets = []int{144, 240, 360, 480, 720, 1080, 1440, 2160}

// RawFormat is the extractor-neutral input of format resolution
type RawFormat struct {
	FormatID string
	Ext      string
	Height   int
	VCodec   string
	ACodec   string
}

// ResolveFormats reduces raw extractor formats to the user-facing
// options. The first two entries are always present: "best" and
// "bestaudio". Resolution entries follow in ascending height, one per
// bucket, preferring formats that already carry audio.
func ResolveFormats(raw []RawFormat) []domain.FormatOption {
	options := []domain.FormatOption{
		{
			FormatID:     "best",
			Ext:          "mp4",
			DisplayLabel: "Best Quality (Video + Audio)",
		},
		{
			FormatID:     "bestaudio",
			Ext:          "mp3",
			DisplayLabel: "Audio MP3 (320kbps)",
			IsAudioOnly:  true,
		},
	}

	type candidate struct {
		format   RawFormat
		hasAudio bool
	}
	byHeight := make(map[int]candidate)

	for _, f := range raw {
		if f.Height <= 0 || f.VCodec == "" || f.VCodec == "none" {
			continue
		}
		bucket := nearestBucket(f.Height)
		if bucket == 0 {
			continue
		}

		hasAudio := f.ACodec != "" && f.ACodec != "none"
		existing, ok := byHeight[bucket]
		if !ok || (hasAudio && !existing.hasAudio) {
			byHeight[bucket] = candidate{format: f, hasAudio: hasAudio}
		}
	}

	heights := make([]int, 0, len(byHeight))
	for h := range byHeight {
		heights = append(heights, h)
	}
	sort.Ints(heights)

	for _, h := range heights {
		c := byHeight[h]
		ext := c.format.Ext
		if ext == "" {
			ext = "mp4"
		}
		options = append(options, domain.FormatOption{
			FormatID:     c.format.FormatID,
			Ext:          ext,
			DisplayLabel: fmt.Sprintf("%dp (%s)", h, ext),
		})
	}

	return options
}

// nearestBucket snaps a height onto the closest offered bucket.
// Heights below the smallest bucket snap to it; anything else snaps
// to the nearest value.
func nearestBucket(height int) int {
	best := 0
	bestDist := -1
	for _, b := range resolutionBuckets {
		dist := b - height
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = b
			bestDist = dist
		}
	}
	return best
}

// metadataFromInfo converts a yt-dlp info dump into typed metadata.
// Raw yt-dlp fields never leave this package.
func metadataFromInfo(info *ytdlp.Info, ref domain.ContentRef) *domain.VideoMetadata {
	webpage := info.WebpageURL
	if webpage == "" {
		webpage = ref.CanonicalURL
	}
	return &domain.VideoMetadata{
		Title:           info.Title,
		Author:          info.BestAuthor(),
		DurationSeconds: int(info.Duration),
		ThumbnailURL:    info.Thumbnail,
		WebpageURL:      webpage,
		Formats:         ResolveFormats(rawFormatsFromInfo(info)),
	}
}

// rawFormatsFromInfo converts yt-dlp format entries into RawFormats
func rawFormatsFromInfo(info *ytdlp.Info) []RawFormat {
	out := make([]RawFormat, 0, len(info.Formats))
	for _, f := range info.Formats {
		out = append(out, RawFormat{
			FormatID: f.FormatID,
			Ext:      f.Ext,
			Height:   f.Height,
			VCodec:   f.VCodec,
			ACodec:   f.ACodec,
		})
	}
	return out
}
