package impl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bakkerme/posterdigest/internal/sources/archive"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
)

// Fetcher is the HTTP page fetcher. It does not retry; the crawler treats a
// failed fetch as the end of the walk.
type Fetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	userAgent   string
	maxBodySize int64
}

type FetcherOptions struct {
	Timeout   time.Duration
	UserAgent string
	// MinInterval is the minimum spacing between requests. Zero disables the limiter.
	MinInterval time.Duration
	MaxBodySize int64
}

func NewFetcher(options FetcherOptions) *Fetcher {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := strings.TrimSpace(options.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxBody := options.MaxBodySize
	if maxBody <= 0 {
		maxBody = 10 << 20 // 10 MiB
	}
	var limiter *rate.Limiter
	if options.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(options.MinInterval), 1)
	}
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		limiter:     limiter,
		userAgent:   userAgent,
		maxBodySize: maxBody,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url string, options archive.FetchOptions) ([]byte, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("archive: url is required")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: build request: %w", err)
	}
	accept := options.Accept
	if accept == "" {
		accept = defaultAccept
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("DNT", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("archive: fetch %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("archive: response from %s too large", url)
	}
	return body, nil
}

var _ archive.Fetcher = (*Fetcher)(nil)
