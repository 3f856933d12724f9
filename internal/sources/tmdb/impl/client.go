package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/retry"
	"github.com/bakkerme/posterdigest/internal/sources/tmdb"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

type Client struct {
	client      *http.Client
	apiKey      string
	baseURL     string
	userAgent   string
	maxBodySize int64
	retry       retry.Config
}

func NewClient(timeout time.Duration, userAgent, baseURL, apiKey string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "posterdigest/1.0"
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		client:      &http.Client{Timeout: timeout},
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     strings.TrimRight(baseURL, "/"),
		userAgent:   userAgent,
		maxBodySize: 2 << 20, // 2 MiB
		retry: retry.Config{
			Attempts: 3,
			Retryable: func(err error) bool {
				var permanent permanentError
				return !errors.As(err, &permanent)
			},
		},
	}
}

type findResult struct {
	GenreIDs []int `json:"genre_ids"`
}

type findResponse struct {
	MovieResults []findResult `json:"movie_results"`
	TVResults    []findResult `json:"tv_results"`
}

// Genres resolves the item's IMDb id with /find and maps the first movie
// (then TV) result's genre ids to names.
func (c *Client) Genres(ctx context.Context, item core.Item) ([]string, error) {
	if c.apiKey == "" {
		return nil, tmdb.ErrMissingAPIKey
	}
	imdbID := strings.TrimSpace(item.IMDbID)
	if imdbID == "" {
		return nil, tmdb.ErrNoExternalID
	}

	endpoint := fmt.Sprintf("%s/find/%s?%s", c.baseURL, url.PathEscape(imdbID), url.Values{
		"api_key":         {c.apiKey},
		"external_source": {"imdb_id"},
	}.Encode())

	var (
		lastStatus int
		respBody   []byte
	)
	err := retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
		if err != nil {
			return err
		}
		if int64(len(body)) > c.maxBodySize {
			return fmt.Errorf("tmdb: response too large")
		}
		lastStatus = resp.StatusCode
		respBody = body

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("tmdb transient error: %s", resp.Status)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return permanentError{status: resp.Status}
		}
		return nil
	})
	if err != nil {
		if lastStatus != 0 {
			return nil, fmt.Errorf("tmdb: status %d for %s: %w", lastStatus, imdbID, err)
		}
		return nil, fmt.Errorf("tmdb: %w", err)
	}

	var decoded findResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("tmdb: decode find response: %w", err)
	}
	switch {
	case len(decoded.MovieResults) > 0:
		return tmdb.GenreNames(decoded.MovieResults[0].GenreIDs), nil
	case len(decoded.TVResults) > 0:
		return tmdb.GenreNames(decoded.TVResults[0].GenreIDs), nil
	}
	return nil, nil
}

type permanentError struct {
	status string
}

func (e permanentError) Error() string {
	return "tmdb request failed: " + e.status
}

var _ tmdb.Lookup = (*Client)(nil)
