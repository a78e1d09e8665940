package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrAlreadyDownloaded is returned by Download when yt-dlp reports the
// target file is already on disk. The destination path is still returned.
var ErrAlreadyDownloaded = errors.New("file has already been downloaded")

// progressPrefix tags our custom progress-template lines so they can be
// told apart from yt-dlp's own output.
const progressPrefix = "[dl] "

var (
	ansiRe        = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	destinationRe = regexp.MustCompile(`Destination:\s+(.+)$`)
	mergingRe     = regexp.MustCompile(`Merging formats into "(.+)"`)
	alreadyRe     = regexp.MustCompile(`\[download\]\s+(.+?) has already been downloaded`)
)

// Runner executes the yt-dlp binary
type Runner struct {
	binary string
	logger *zap.Logger
}

// NewRunner creates a runner for the given yt-dlp binary
func NewRunner(binary string, logger *zap.Logger) *Runner {
	if binary == "" {
		binary = "yt-dlp"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{binary: binary, logger: logger}
}

// Version returns the installed yt-dlp version, or an error when the
// binary is missing.
func (r *Runner) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, r.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp not available: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// InfoFormat is one format entry of a yt-dlp info dump
type InfoFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Height     int     `json:"height"`
	Width      int     `json:"width"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	FormatNote string  `json:"format_note"`
	FileSize   int64   `json:"filesize"`
	TBR        float64 `json:"tbr"`
}

// Info is the subset of a yt-dlp info dump the application consumes
type Info struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Uploader   string       `json:"uploader"`
	Creator    string       `json:"creator"`
	Channel    string       `json:"channel"`
	Duration   float64      `json:"duration"`
	Thumbnail  string       `json:"thumbnail"`
	WebpageURL string       `json:"webpage_url"`
	URL        string       `json:"url"`
	Ext        string       `json:"ext"`
	Formats    []InfoFormat `json:"formats"`
}

// BestAuthor picks the first non-empty author-ish field
func (i *Info) BestAuthor() string {
	for _, s := range []string{i.Uploader, i.Creator, i.Channel} {
		if s != "" {
			return s
		}
	}
	return "Unknown"
}

// ExtractOptions controls a metadata extraction run
type ExtractOptions struct {
	UserAgent          string
	Referer            string
	Headers            map[string]string
	SocketTimeout      int // seconds, 0 = yt-dlp default
	ExtractorArgs      string
	NoCheckCertificate bool
	FirstPlaylistItem  bool
}

// ExtractInfo runs yt-dlp --dump-json against the URL and parses the
// first JSON document it emits.
func (r *Runner) ExtractInfo(ctx context.Context, url string, opts ExtractOptions) (*Info, error) {
	args := []string{"--dump-json", "--no-warnings", "--skip-download"}
	if opts.FirstPlaylistItem {
		args = append(args, "--playlist-items", "1")
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args, headerArgs(opts.UserAgent, opts.Referer, opts.Headers)...)
	if opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(opts.SocketTimeout))
	}
	if opts.ExtractorArgs != "" {
		args = append(args, "--extractor-args", opts.ExtractorArgs)
	}
	if opts.NoCheckCertificate {
		args = append(args, "--no-check-certificate")
	}
	args = append(args, url)

	r.logger.Debug("Running yt-dlp extraction", zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp extraction failed: %s: %w", lastLine(stderr.String()), err)
	}

	// --dump-json prints one JSON document per line; take the first.
	line := firstNonEmptyLine(stdout.String())
	if line == "" {
		return nil, fmt.Errorf("yt-dlp produced no output")
	}

	var info Info
	if err := json.Unmarshal([]byte(line), &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// Progress is one progress sample of a running download
type Progress struct {
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64 // bytes/sec
	ETASeconds      int
}

// ProgressFunc receives progress samples during a download
type ProgressFunc func(Progress)

// DownloadOptions controls a download run
type DownloadOptions struct {
	Format             string
	OutputTemplate     string
	MergeFormat        string // e.g. "mp4", empty to skip
	ExtractAudio       bool
	AudioFormat        string // e.g. "mp3"
	AudioQuality       string // e.g. "320K"
	Retries            int
	UserAgent          string
	Referer            string
	Headers            map[string]string
	NoCheckCertificate bool
}

// Download runs yt-dlp for the URL and returns the final output path.
// The path is taken from Destination/Merging lines; a merge overrides
// the per-stream destinations. Returns ErrAlreadyDownloaded (with the
// existing path) when yt-dlp refuses to overwrite.
func (r *Runner) Download(ctx context.Context, url string, opts DownloadOptions, onProgress ProgressFunc) (string, error) {
	args := []string{"--newline", "--no-playlist"}
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.OutputTemplate != "" {
		args = append(args, "-o", opts.OutputTemplate)
	}
	if opts.MergeFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeFormat)
	}
	if opts.ExtractAudio {
		args = append(args, "-x", "--audio-format", opts.AudioFormat)
		if opts.AudioQuality != "" {
			args = append(args, "--audio-quality", opts.AudioQuality)
		}
	}
	if opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(opts.Retries))
	}
	args = append(args, headerArgs(opts.UserAgent, opts.Referer, opts.Headers)...)
	if opts.NoCheckCertificate {
		args = append(args, "--no-check-certificate")
	}
	args = append(args,
		"--progress-template",
		"download:"+progressPrefix+"%(progress.downloaded_bytes)s|%(progress.total_bytes)s|%(progress.total_bytes_estimate)s|%(progress.speed)s|%(progress.eta)s",
		url)

	r.logger.Debug("Running yt-dlp download", zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, r.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var destination string
	var merged bool
	var alreadyExists bool

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := stripANSI(scanner.Text())

		if p, ok := parseProgressLine(line); ok {
			if onProgress != nil {
				onProgress(p)
			}
			continue
		}
		if path, ok := parseMergingLine(line); ok {
			destination = path
			merged = true
			continue
		}
		if path, ok := parseDestinationLine(line); ok && !merged {
			destination = path
			continue
		}
		if path, ok := parseAlreadyDownloadedLine(line); ok {
			destination = path
			alreadyExists = true
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return destination, ctx.Err()
	}
	if waitErr != nil {
		return destination, fmt.Errorf("yt-dlp failed: %s: %w", lastLine(stderr.String()), waitErr)
	}
	if alreadyExists {
		return destination, ErrAlreadyDownloaded
	}
	return destination, nil
}

// headerArgs builds the UA/referer/header flags shared by both runs
func headerArgs(userAgent, referer string, headers map[string]string) []string {
	var args []string
	if userAgent != "" {
		args = append(args, "--user-agent", userAgent)
	}
	if referer != "" {
		args = append(args, "--referer", referer)
	}
	for k, v := range headers {
		args = append(args, "--add-header", fmt.Sprintf("%s: %s", k, v))
	}
	return args
}

// parseProgressLine parses one of our progress-template lines.
// Fields may be "NA" or "None" when yt-dlp has no estimate yet.
func parseProgressLine(line string) (Progress, bool) {
	if !strings.HasPrefix(line, progressPrefix) {
		return Progress{}, false
	}
	parts := strings.Split(strings.TrimPrefix(line, progressPrefix), "|")
	if len(parts) != 5 {
		return Progress{}, false
	}

	p := Progress{
		DownloadedBytes: parseInt64(parts[0]),
		TotalBytes:      parseInt64(parts[1]),
		Speed:           parseFloat(parts[3]),
		ETASeconds:      int(parseInt64(parts[4])),
	}
	if p.TotalBytes == 0 {
		p.TotalBytes = parseInt64(parts[2])
	}
	return p, true
}

func parseDestinationLine(line string) (string, bool) {
	m := destinationRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func parseMergingLine(line string) (string, bool) {
	m := mergingRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func parseAlreadyDownloadedLine(line string) (string, bool) {
	m := alreadyRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "None" {
		return 0
	}
	// yt-dlp may render numeric fields as floats
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "None" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
