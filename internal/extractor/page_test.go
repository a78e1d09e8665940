package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyIsNoob/khytool/internal/domain"
)

func TestMetaContent(t *testing.T) {
	html := `<html><head>
		<meta property="og:title" content="A Great Video" />
		<meta content="Some Author" property="og:author" />
		<meta name="description" content="desc here" />
	</head></html>`

	assert.Equal(t, "A Great Video", metaContent(html, "og:title"))
	assert.Equal(t, "Some Author", metaContent(html, "og:author"), "reversed attribute order")
	assert.Equal(t, "desc here", metaContent(html, "description"))
	assert.Equal(t, "", metaContent(html, "og:image"))
}

func TestUnescapeMediaURL(t *testing.T) {
	assert.Equal(t,
		"https://v16.tiktokcdn.com/video/play?a=1&b=2",
		unescapeMediaURL(`https:\/\/v16.tiktokcdn.com\/video\/play?a=1&amp;b=2`))
	assert.Equal(t,
		"https://cdn.example.com/x/y",
		unescapeMediaURL(`https://cdn.example.com/x/y`))
}

func TestParseTikTokMobilePage(t *testing.T) {
	html := `<html><head>
		<meta property="og:title" content="dance video" />
		<meta property="og:author" content="@dancer" />
		<meta property="og:image" content="https://cdn.tiktok.com/cover.jpg" />
	</head><body>
		<video src="https://v16.tiktokcdn.com/play.mp4?sig=abc"></video>
	</body></html>`

	meta, err := parseTikTokMobilePage(html, testRef())
	require.NoError(t, err)
	assert.Equal(t, "dance video", meta.Title)
	assert.Equal(t, "@dancer", meta.Author)
	assert.Equal(t, "https://cdn.tiktok.com/cover.jpg", meta.ThumbnailURL)
	assert.Equal(t, "https://v16.tiktokcdn.com/play.mp4?sig=abc", meta.DirectMediaURL)
}

func TestParseTikTokMobilePage_EscapedPlayAddr(t *testing.T) {
	html := `<script>{"video":{"playAddr":"https:\/\/v16.tiktokcdn.com\/play\/123.mp4"}}</script>`

	meta, err := parseTikTokMobilePage(html, testRef())
	require.NoError(t, err)
	assert.Equal(t, "https://v16.tiktokcdn.com/play/123.mp4", meta.DirectMediaURL)
}

func TestMediaURLFromEmbedJSON(t *testing.T) {
	html := `<script id="__NEXT_DATA__" type="application/json">
		{"props":{"initialProps":{"videoData":{"contentUrl":"https:\/\/v16.tiktokcdn.com\/content.mp4"}}}}
	</script>`

	assert.Equal(t, `https:\/\/v16.tiktokcdn.com\/content.mp4`, mediaURLFromEmbedJSON(html))
}

func TestParseFacebookWatchPage_HDPreferred(t *testing.T) {
	html := `<html>
		<meta property="og:title" content="Cool Clip | Facebook" />
		<script>{"sd_src":"https:\/\/video.fbcdn.net\/sd.mp4","hd_src":"https:\/\/video.fbcdn.net\/hd.mp4"}</script>
		<script>{"ownerName":"Page Name"}</script>
	</html>`

	meta, err := parseFacebookWatchPage(html, domain.ContentRef{
		Platform:     domain.PlatformFacebook,
		CanonicalURL: "https://www.facebook.com/watch/?v=123",
		ContentID:    "123",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://video.fbcdn.net/hd.mp4", meta.DirectMediaURL)
	assert.Equal(t, "Cool Clip", meta.Title, "site suffix stripped")
	assert.Equal(t, "Page Name", meta.Author)
}

func TestParseFacebookWatchPage_FallbackChain(t *testing.T) {
	html := `<html><body>
		<video src="https://video.fbcdn.net/tag.mp4"></video>
	</body></html>`

	meta, err := parseFacebookWatchPage(html, domain.ContentRef{Platform: domain.PlatformFacebook})
	require.NoError(t, err)
	assert.Equal(t, "https://video.fbcdn.net/tag.mp4", meta.DirectMediaURL)
}

func TestParseFacebookWatchPage_NoMedia(t *testing.T) {
	_, err := parseFacebookWatchPage(`<html><body>nothing here</body></html>`,
		domain.ContentRef{Platform: domain.PlatformFacebook})
	assert.Error(t, err)
}

func TestParseYouTubeWatchPage(t *testing.T) {
	html := `<html><head>
		<title>Never Gonna Give You Up - YouTube</title>
		<meta property="og:title" content="Never Gonna Give You Up" />
		<meta property="og:image" content="https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg" />
		<link itemprop="name" content="Rick Astley">
	</head></html>`

	ref := domain.ContentRef{
		Platform:     domain.PlatformYouTube,
		CanonicalURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		ContentID:    "dQw4w9WgXcQ",
	}
	meta, err := parseYouTubeWatchPage(html, ref)
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", meta.Title)
	assert.Equal(t, "Rick Astley", meta.Author)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg", meta.ThumbnailURL)
	assert.Empty(t, meta.DirectMediaURL, "watch-page scrape never yields a direct stream")
}

func TestYouTubeChannelName(t *testing.T) {
	assert.Equal(t, "Rick Astley",
		youtubeChannelName(`<link itemprop="name" content="Rick Astley">`))
	assert.Equal(t, "Some Channel",
		youtubeChannelName(`<script>{"ownerChannelName":"Some Channel","other":1}</script>`))
	assert.Equal(t, "", youtubeChannelName(`<meta property="og:video:tag" content="music" />`),
		"keyword tags are not the channel name")
}

func TestParseYouTubeWatchPage_NoTitle(t *testing.T) {
	_, err := parseYouTubeWatchPage("<html></html>", domain.ContentRef{})
	assert.Error(t, err)
}

func TestFacebookURLVariants(t *testing.T) {
	variants := facebookURLVariants(domain.ContentRef{
		Platform:     domain.PlatformFacebook,
		CanonicalURL: "https://www.facebook.com/watch/?v=42",
		ContentID:    "42",
	})
	require.Len(t, variants, 5)
	assert.Equal(t, "https://www.facebook.com/watch/?v=42", variants[0])
	assert.Equal(t, "https://www.facebook.com/reel/42", variants[3])

	// Unknown ID: only the original URL remains
	variants = facebookURLVariants(domain.ContentRef{
		CanonicalURL: "https://www.facebook.com/some.page",
		ContentID:    domain.UnknownContentID,
	})
	require.Len(t, variants, 1)
}
