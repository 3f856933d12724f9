package impl

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bakkerme/posterdigest/internal/sources/archive"
)

// itemHrefPattern matches listing thumbnails such as "../2025/tron_ares.html".
var itemHrefPattern = regexp.MustCompile(`^\.\./\d{4}/[^/]+\.html$`)

// LatestParser reads the "latest additions" listing pages: one thumbnail
// block per item and an "older" link to the previous page.
type LatestParser struct{}

func NewLatestParser() *LatestParser {
	return &LatestParser{}
}

func (p *LatestParser) ParseListing(pageURL string, body []byte) (archive.Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return archive.Listing{}, fmt.Errorf("archive: parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return archive.Listing{}, fmt.Errorf("archive: parse listing html: %w", err)
	}

	var listing archive.Listing
	doc.Find("div.minimal_thumb").Each(func(_ int, thumb *goquery.Selection) {
		href, ok := thumb.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if !itemHrefPattern.MatchString(href) {
			return
		}
		if id := resolve(base, href); id != "" {
			listing.IDs = append(listing.IDs, id)
		}
	})
	listing.Older = olderLink(doc)
	return listing, nil
}

// olderLink returns the href of the first anchor whose text mentions "older"
// and which points at another numbered listing page.
func olderLink(doc *goquery.Document) string {
	var older string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(a.Text()), "older") {
			return true
		}
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if strings.Contains(href, "page") && strings.Contains(href, ".html") {
			older = href
			return false
		}
		return true
	})
	return older
}

// YearParser reads a year's all-posters page (/{year}/std.html). The page
// lists every item of the year at once, so it never has an older pointer.
type YearParser struct{}

func NewYearParser() *YearParser {
	return &YearParser{}
}

// YearURL returns the all-posters page for year under baseURL.
func YearURL(baseURL string, year int) string {
	return fmt.Sprintf("%s/%d/std.html", strings.TrimRight(baseURL, "/"), year)
}

func (p *YearParser) ParseListing(pageURL string, body []byte) (archive.Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return archive.Listing{}, fmt.Errorf("archive: parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return archive.Listing{}, fmt.Errorf("archive: parse year html: %w", err)
	}

	seen := map[string]struct{}{}
	var listing archive.Listing
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !isYearItemHref(href) {
			return
		}
		id := resolve(base, href)
		if id == "" {
			return
		}
		// Each poster is linked twice: thumbnail and caption.
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		listing.IDs = append(listing.IDs, id)
	})
	return listing, nil
}

func isYearItemHref(href string) bool {
	switch {
	case !strings.HasSuffix(href, ".html"):
		return false
	case strings.HasPrefix(href, "/"), strings.HasPrefix(href, "http"), strings.HasPrefix(href, "#"):
		return false
	case strings.Contains(href, "alpha"), strings.Contains(href, "std"):
		return false
	}
	return true
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

var (
	_ archive.ListingParser = (*LatestParser)(nil)
	_ archive.ListingParser = (*YearParser)(nil)
)
