// Package archive describes the collaborators that read the poster archive:
// fetching pages, parsing listing pages into item ids and parsing item pages
// into their downloadable variants.
package archive

import (
	"context"
	"errors"

	"github.com/bakkerme/posterdigest/internal/core"
)

// ErrNoVariants is returned by item parsers when a page exposes no
// recognizable resolution variants.
var ErrNoVariants = errors.New("archive: item page exposes no poster variants")

// FetchOptions controls page fetch behavior.
type FetchOptions struct {
	// Accept overrides the Accept header for the request.
	Accept string
}

// Fetcher retrieves the raw body of a page. Non-2xx responses are errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string, options FetchOptions) ([]byte, error)
}

// Listing is one parsed listing page: item ids in presentation order (newest
// first) and the older-page pointer, if any. Older may be relative; the
// crawler resolves it against the page URL.
type Listing struct {
	IDs   []string
	Older string
}

// ListingParser turns a listing page body into item ids and an older pointer.
type ListingParser interface {
	ParseListing(pageURL string, body []byte) (Listing, error)
}

// ItemParser turns an item page body into an Item.
type ItemParser interface {
	ParseItem(pageURL string, body []byte) (core.Item, error)
}
