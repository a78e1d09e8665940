package extractor

import (
	"regexp"
	"strings"
)

// User agents used across the scraping strategies
const (
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
)

var (
	videoTagRe  = regexp.MustCompile(`<video[^>]+src="([^"]+)"`)
	htmlTitleRe = regexp.MustCompile(`<title[^>]*>([^<]+)</title>`)
)

// metaContent pulls the content of an og:/meta tag, tolerating both
// attribute orders.
func metaContent(html, property string) string {
	patterns := []string{
		`<meta[^>]+property="` + regexp.QuoteMeta(property) + `"[^>]+content="([^"]*)"`,
		`<meta[^>]+content="([^"]*)"[^>]+property="` + regexp.QuoteMeta(property) + `"`,
		`<meta[^>]+name="` + regexp.QuoteMeta(property) + `"[^>]+content="([^"]*)"`,
	}
	for _, p := range patterns {
		if m := regexp.MustCompile(p).FindStringSubmatch(html); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// htmlTitle returns the <title> text, if any
func htmlTitle(html string) string {
	if m := htmlTitleRe.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// videoTagSrc returns the src of the first <video> tag
func videoTagSrc(html string) string {
	if m := videoTagRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

// firstPattern returns the first submatch of the first pattern that
// hits. Patterns are tried in order, so callers encode preference by
// ordering.
func firstPattern(html string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(html); m != nil {
			return m[1]
		}
	}
	return ""
}

// unescapeMediaURL undoes the escaping media URLs carry when embedded
// in inline JSON blobs.
func unescapeMediaURL(s string) string {
	s = strings.ReplaceAll(s, `\/`, `/`)
	s = strings.ReplaceAll(s, `\u002F`, `/`)
	s = strings.ReplaceAll(s, `\u0026`, `&`)
	s = strings.ReplaceAll(s, `&amp;`, `&`)
	return s
}
