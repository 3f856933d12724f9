package core

import (
	"strings"
	"time"
)

// ResolutionClass names a quality/size tier of a poster image.
type ResolutionClass string

const (
	ResolutionXXXLG ResolutionClass = "XXXLG"
	ResolutionXXLG  ResolutionClass = "XXLG"
	ResolutionXLG   ResolutionClass = "XLG"
	ResolutionLG    ResolutionClass = "LG"
)

// DefaultResolutionPriority is the highest-quality-first order used when no
// explicit order is configured.
var DefaultResolutionPriority = []ResolutionClass{
	ResolutionXXXLG,
	ResolutionXXLG,
	ResolutionXLG,
	ResolutionLG,
}

// ParseResolutionClass normalizes a class name ("xxlg", " XXLG ") to its constant.
func ParseResolutionClass(raw string) (ResolutionClass, bool) {
	class := ResolutionClass(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range DefaultResolutionPriority {
		if class == known {
			return known, true
		}
	}
	return "", false
}

// Variant is one downloadable resolution of an item.
type Variant struct {
	Class      ResolutionClass `json:"class" yaml:"class"`
	Link       string          `json:"link" yaml:"link"`
	URL        string          `json:"url" yaml:"url"`
	Dimensions string          `json:"dimensions" yaml:"dimensions"`
}

// Item is a parsed item page: everything the selector needs to decide on one
// listing entry.
type Item struct {
	ID           string                      `json:"id" yaml:"id"`
	Title        string                      `json:"title" yaml:"title"`
	Year         string                      `json:"year" yaml:"year"`
	PosterNumber string                      `json:"poster_number" yaml:"poster_number"`
	BaseName     string                      `json:"base_name" yaml:"base_name"`
	IMDbID       string                      `json:"imdb_id,omitempty" yaml:"imdb_id,omitempty"`
	Variants     map[ResolutionClass]Variant `json:"variants" yaml:"variants"`
	// Position is the item's index in crawl presentation order (0 is newest).
	Position int `json:"position" yaml:"position"`
}

// Artifact is the chosen representation of an item after selection, plus the
// local data filled in once it has been stored.
type Artifact struct {
	ItemID       string          `json:"item_id" yaml:"item_id"`
	Title        string          `json:"title" yaml:"title"`
	Year         string          `json:"year" yaml:"year"`
	PosterNumber string          `json:"poster_number" yaml:"poster_number"`
	BaseName     string          `json:"base_name" yaml:"base_name"`
	Class        ResolutionClass `json:"class" yaml:"class"`
	Dimensions   string          `json:"dimensions" yaml:"dimensions"`
	URL          string          `json:"url" yaml:"url"`
	Position     int             `json:"position" yaml:"position"`

	LocalPath     string `json:"local_path,omitempty" yaml:"local_path,omitempty"`
	Existed       bool   `json:"existed,omitempty" yaml:"existed,omitempty"`
	ContentType   string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Thumbnail     []byte `json:"-" yaml:"-"`
	EstimatedSize int64  `json:"estimated_size" yaml:"estimated_size"`
}

// IgnoredItem is an item that was handled without reaching a batch.
type IgnoredItem struct {
	ID       string `json:"id" yaml:"id"`
	Position int    `json:"position" yaml:"position"`
	Reason   string `json:"reason" yaml:"reason"`
}

// ProcessError tracks an absorbed failure during a run.
type ProcessError struct {
	Stage      string    `json:"stage" yaml:"stage"` // "crawl", "item", "select", "store", "dispatch", "tracker"
	ItemID     string    `json:"item_id,omitempty" yaml:"item_id,omitempty"`
	Error      string    `json:"error" yaml:"error"`
	OccurredAt time.Time `json:"occurred_at" yaml:"occurred_at"`
}
