package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HyIsNoob/khytool/internal/domain"
)

// ProgressFunc receives human-readable progress messages while an
// extraction works through its strategies.
type ProgressFunc func(msg string)

// Extractor extracts video metadata for one platform
type Extractor interface {
	Platform() domain.Platform
	Extract(ctx context.Context, ref domain.ContentRef, progress ProgressFunc) (*domain.VideoMetadata, error)
}

// Registry maps platforms to their extractors
type Registry struct {
	extractors map[domain.Platform]Extractor
}

// NewRegistry creates an empty extractor registry
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[domain.Platform]Extractor)}
}

// Register adds an extractor. Later registrations for the same
// platform replace earlier ones.
func (r *Registry) Register(e Extractor) {
	r.extractors[e.Platform()] = e
}

// ForPlatform returns the extractor for a platform
func (r *Registry) ForPlatform(p domain.Platform) (Extractor, error) {
	e, ok := r.extractors[p]
	if !ok {
		return nil, fmt.Errorf("no extractor for platform: %s", p)
	}
	return e, nil
}

// Platforms lists the registered platforms
func (r *Registry) Platforms() []domain.Platform {
	out := make([]domain.Platform, 0, len(r.extractors))
	for p := range r.extractors {
		out = append(out, p)
	}
	return out
}

// strategy is one attempt in an ordered extraction chain
type strategy struct {
	name string
	run  func(ctx context.Context) (*domain.VideoMetadata, error)
}

// runStrategies tries each strategy in order. A strategy failure is
// isolated: it is reported through progress and the chain moves on.
// When every strategy fails a stub result is synthesized so the caller
// can always proceed to the download stage.
func runStrategies(ctx context.Context, ref domain.ContentRef, progress ProgressFunc, strategies []strategy) (*domain.VideoMetadata, error) {
	report := func(msg string) {
		if progress != nil {
			progress(msg)
		}
	}

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report(fmt.Sprintf("Trying %s...", s.name))
		meta, err := s.run(ctx)
		if err != nil {
			report(fmt.Sprintf("%s failed: %v", s.name, err))
			continue
		}
		if meta == nil {
			report(fmt.Sprintf("%s returned no result", s.name))
			continue
		}

		report(fmt.Sprintf("%s succeeded", s.name))
		finalizeMetadata(meta)
		return meta, nil
	}

	report("All strategies failed, using placeholder info")
	return stubMetadata(ref), nil
}

// stubMetadata is the guaranteed last-resort result
func stubMetadata(ref domain.ContentRef) *domain.VideoMetadata {
	return &domain.VideoMetadata{
		Title:           fmt.Sprintf("%s Video %s", platformLabel(ref.Platform), ref.ContentID),
		Author:          "Unknown",
		DurationSeconds: 0,
		WebpageURL:      ref.CanonicalURL,
		Formats:         ResolveFormats(nil),
	}
}

// finalizeMetadata fills the gaps a partial strategy result may leave
func finalizeMetadata(meta *domain.VideoMetadata) {
	if meta.Title == "" {
		meta.Title = "Untitled Video"
	}
	if meta.Author == "" {
		meta.Author = "Unknown"
	}
	if len(meta.Formats) == 0 {
		meta.Formats = ResolveFormats(nil)
	}
}

func platformLabel(p domain.Platform) string {
	switch p {
	case domain.PlatformYouTube:
		return "YouTube"
	case domain.PlatformTikTok:
		return "TikTok"
	case domain.PlatformFacebook:
		return "Facebook"
	}
	return string(p)
}

// newHTTPClient builds the client the scraping strategies share
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// fetchPage GETs a URL with the given headers and returns the body
func fetchPage(ctx context.Context, client *http.Client, url string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
