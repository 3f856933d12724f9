package impl

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/sources/archive"
)

var (
	titlePattern      = regexp.MustCompile(`(.+?) Movie Poster \(#(\d+) of \d+\)`)
	yearPattern       = regexp.MustCompile(`/(\d{4})/`)
	baseNamePattern   = regexp.MustCompile(`/(\d{4})/([^/]+)\.html$`)
	imdbIDPattern     = regexp.MustCompile(`imdb\.com/title/(tt\d+)`)
	dimensionsPattern = regexp.MustCompile(`^\d+\s*x\s*\d+$`)
)

// Suffixes are checked longest first: "_xlg.html" is also a suffix of "_xxlg.html".
var variantSuffixes = []struct {
	suffix string
	class  core.ResolutionClass
}{
	{suffix: "_xxxlg.html", class: core.ResolutionXXXLG},
	{suffix: "_xxlg.html", class: core.ResolutionXXLG},
	{suffix: "_xlg.html", class: core.ResolutionXLG},
	{suffix: "_lg.html", class: core.ResolutionLG},
}

// ItemParser reads a poster page: title and poster number from <title>, year
// and base name from the URL, and the resolution variants from the
// "other sizes:" paragraph.
type ItemParser struct {
	baseURL string
}

// NewItemParser builds image URLs under baseURL (e.g. "http://www.impawards.com").
// An empty baseURL uses the scheme and host of each item page.
func NewItemParser(baseURL string) *ItemParser {
	return &ItemParser{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

func (p *ItemParser) ParseItem(pageURL string, body []byte) (core.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return core.Item{}, fmt.Errorf("archive: parse item html: %w", err)
	}

	item := core.Item{
		ID:           pageURL,
		Title:        "Unknown",
		PosterNumber: "1",
		Year:         "unknown",
		Variants:     map[core.ResolutionClass]core.Variant{},
	}
	if m := titlePattern.FindStringSubmatch(doc.Find("title").First().Text()); m != nil {
		item.Title = strings.TrimSpace(m[1])
		item.PosterNumber = m[2]
	}
	if m := yearPattern.FindStringSubmatch(pageURL); m != nil {
		item.Year = m[1]
	}
	if m := baseNamePattern.FindStringSubmatch(pageURL); m != nil {
		item.BaseName = m[2]
	}

	baseURL := p.baseURL
	if baseURL == "" {
		if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
			baseURL = u.Scheme + "://" + u.Host
		}
	}

	doc.Find("p.small").Each(func(_ int, para *goquery.Selection) {
		if !strings.Contains(para.Text(), "other sizes:") {
			return
		}
		para.Find("a").Each(func(_ int, a *goquery.Selection) {
			href := strings.TrimSpace(a.AttrOr("href", ""))
			dims := strings.TrimSpace(a.Text())
			// The second anchor wraps the preview image and has no dimension text.
			if dims == "" || !strings.Contains(dims, "x") {
				return
			}
			class, ok := variantClass(href)
			if !ok {
				return
			}
			item.Variants[class] = core.Variant{
				Class:      class,
				Link:       href,
				URL:        imageURL(baseURL, item.Year, href),
				Dimensions: normalizeDimensions(dims),
			}
		})
	})

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if m := imdbIDPattern.FindStringSubmatch(a.AttrOr("href", "")); m != nil {
			item.IMDbID = m[1]
			return false
		}
		return true
	})

	if len(item.Variants) == 0 {
		return item, archive.ErrNoVariants
	}
	return item, nil
}

func variantClass(href string) (core.ResolutionClass, bool) {
	for _, v := range variantSuffixes {
		if strings.Contains(href, v.suffix) {
			return v.class, true
		}
	}
	return "", false
}

// imageURL maps a size page link ("tron_ares_xxlg.html") to the image file
// ({base}/{year}/posters/tron_ares_xxlg.jpg).
func imageURL(baseURL, year, link string) string {
	stem := strings.TrimSuffix(path.Base(link), ".html")
	return fmt.Sprintf("%s/%s/posters/%s.jpg", baseURL, year, stem)
}

func normalizeDimensions(dims string) string {
	if dimensionsPattern.MatchString(dims) {
		return strings.ReplaceAll(dims, " ", "")
	}
	return dims
}

var _ archive.ItemParser = (*ItemParser)(nil)
