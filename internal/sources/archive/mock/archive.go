package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/sources/archive"
)

// Fetcher serves canned page bodies and records every requested URL.
type Fetcher struct {
	mu        sync.Mutex
	BodyByURL map[string][]byte
	ErrByURL  map[string]error
	Calls     []string
}

func (f *Fetcher) Fetch(ctx context.Context, url string, options archive.FetchOptions) ([]byte, error) {
	_ = options
	f.mu.Lock()
	f.Calls = append(f.Calls, url)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ErrByURL != nil {
		if err, ok := f.ErrByURL[url]; ok {
			return nil, err
		}
	}
	body, ok := f.BodyByURL[url]
	if !ok {
		return nil, fmt.Errorf("mock: no page for %s", url)
	}
	return body, nil
}

// ListingParser returns a canned listing per page URL, ignoring the body.
type ListingParser struct {
	ListingByURL map[string]archive.Listing
}

func (p *ListingParser) ParseListing(pageURL string, body []byte) (archive.Listing, error) {
	_ = body
	listing, ok := p.ListingByURL[pageURL]
	if !ok {
		return archive.Listing{}, fmt.Errorf("mock: no listing for %s", pageURL)
	}
	return listing, nil
}

// ItemParser returns a canned item per page URL, ignoring the body.
type ItemParser struct {
	ItemByURL map[string]core.Item
	ErrByURL  map[string]error
}

func (p *ItemParser) ParseItem(pageURL string, body []byte) (core.Item, error) {
	_ = body
	if p.ErrByURL != nil {
		if err, ok := p.ErrByURL[pageURL]; ok {
			return core.Item{}, err
		}
	}
	item, ok := p.ItemByURL[pageURL]
	if !ok {
		return core.Item{}, archive.ErrNoVariants
	}
	item.ID = pageURL
	return item, nil
}

var (
	_ archive.Fetcher       = (*Fetcher)(nil)
	_ archive.ListingParser = (*ListingParser)(nil)
	_ archive.ItemParser    = (*ItemParser)(nil)
)
