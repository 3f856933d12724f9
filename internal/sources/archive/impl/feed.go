package impl

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/bakkerme/posterdigest/internal/sources/archive"
	"github.com/mmcdole/gofeed/atom"
)

// FeedParser reads an Atom listing (RFC 5005 paged feed). Each entry's
// alternate link is an item id; the feed's "next" or "prev-archive" link is
// the older pointer.
type FeedParser struct {
	parser *atom.Parser
}

func NewFeedParser() *FeedParser {
	return &FeedParser{parser: &atom.Parser{}}
}

func (p *FeedParser) ParseListing(pageURL string, body []byte) (archive.Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return archive.Listing{}, fmt.Errorf("archive: parse page url: %w", err)
	}
	feed, err := p.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return archive.Listing{}, fmt.Errorf("archive: parse atom feed: %w", err)
	}

	var listing archive.Listing
	for _, entry := range feed.Entries {
		if entry == nil {
			continue
		}
		href := entryLink(entry)
		if href == "" {
			continue
		}
		if id := resolve(base, href); id != "" {
			listing.IDs = append(listing.IDs, id)
		}
	}
	for _, rel := range []string{"next", "prev-archive"} {
		if href := linkByRel(feed.Links, rel); href != "" {
			listing.Older = href
			break
		}
	}
	return listing, nil
}

func entryLink(entry *atom.Entry) string {
	if href := linkByRel(entry.Links, "alternate"); href != "" {
		return href
	}
	// An entry without links may still carry its page URL as the id.
	if strings.HasPrefix(entry.ID, "http://") || strings.HasPrefix(entry.ID, "https://") {
		return entry.ID
	}
	return ""
}

func linkByRel(links []*atom.Link, rel string) string {
	for _, link := range links {
		if link == nil {
			continue
		}
		linkRel := link.Rel
		if linkRel == "" {
			linkRel = "alternate"
		}
		if linkRel == rel {
			return strings.TrimSpace(link.Href)
		}
	}
	return ""
}

var _ archive.ListingParser = (*FeedParser)(nil)
