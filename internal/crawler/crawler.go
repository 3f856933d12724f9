// Package crawler walks a reverse-chronological listing newest-first and
// collects item ids until it reaches one that was already handled.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/sources/archive"
)

type StopReason string

const (
	StopKnownID      StopReason = "known_id"
	StopMaxPages     StopReason = "max_pages"
	StopNoOlderLink  StopReason = "no_older_link"
	StopNetworkError StopReason = "network_error"
	StopCancelled    StopReason = "cancelled"
)

// Result is the outcome of one crawl. IDs are newest-first and unique. Err is
// set when a page could not be fetched or read; IDs from earlier pages are
// kept.
type Result struct {
	IDs   []string
	Stop  StopReason
	Pages int
	Err   error
}

type Crawler struct {
	fetcher archive.Fetcher
	parser  archive.ListingParser
}

func New(fetcher archive.Fetcher, parser archive.ListingParser) *Crawler {
	return &Crawler{fetcher: fetcher, parser: parser}
}

// Crawl walks pages from startURL following the older-page pointer. It never
// retries a page. The returned error is non-nil only when ctx is done; fetch
// failures are reported through Result.Err with StopNetworkError.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxPages int, boundary map[string]struct{}) (Result, error) {
	logger := core.LoggerFromContext(ctx)
	if maxPages <= 0 {
		maxPages = 1
	}
	var result Result
	emitted := map[string]struct{}{}
	visited := map[string]struct{}{}
	pageURL := strings.TrimSpace(startURL)

	for {
		if err := ctx.Err(); err != nil {
			result.Stop = StopCancelled
			return result, err
		}
		visited[pageURL] = struct{}{}
		logger.Info("fetching listing page", "page", result.Pages+1, "max_pages", maxPages, "url", pageURL)

		body, err := c.fetcher.Fetch(ctx, pageURL, archive.FetchOptions{})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				result.Stop = StopCancelled
				return result, ctxErr
			}
			return c.truncated(ctx, result, fmt.Errorf("crawler: fetch page %d: %w", result.Pages+1, err)), nil
		}
		listing, err := c.parser.ParseListing(pageURL, body)
		if err != nil {
			return c.truncated(ctx, result, fmt.Errorf("crawler: parse page %d: %w", result.Pages+1, err)), nil
		}
		result.Pages++

		newOnPage := 0
		for _, id := range listing.IDs {
			if id == "" {
				continue
			}
			if _, known := boundary[id]; known {
				result.Stop = StopKnownID
				logger.Info("reached previously handled item", "id", id, "page", result.Pages, "new_on_page", newOnPage)
				return result, nil
			}
			if _, dup := emitted[id]; dup {
				continue
			}
			emitted[id] = struct{}{}
			result.IDs = append(result.IDs, id)
			newOnPage++
		}
		logger.Info("listing page read", "page", result.Pages, "new", newOnPage, "total", len(result.IDs))

		if result.Pages >= maxPages {
			result.Stop = StopMaxPages
			return result, nil
		}
		next := resolveOlder(pageURL, listing.Older)
		if next == "" {
			result.Stop = StopNoOlderLink
			return result, nil
		}
		if _, seen := visited[next]; seen {
			logger.Warn("older link points at a page already visited", "url", next)
			result.Stop = StopNoOlderLink
			return result, nil
		}
		pageURL = next
	}
}

func (c *Crawler) truncated(ctx context.Context, result Result, err error) Result {
	core.LoggerFromContext(ctx).Warn("crawl truncated", "pages", result.Pages, "ids", len(result.IDs), "error", err)
	result.Stop = StopNetworkError
	result.Err = err
	return result
}

func resolveOlder(pageURL, older string) string {
	older = strings.TrimSpace(older)
	if older == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(older)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
