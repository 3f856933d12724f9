// Package tmdb looks up an item's genres on The Movie Database by its IMDb id.
package tmdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/bakkerme/posterdigest/internal/core"
)

var (
	ErrMissingAPIKey = errors.New("tmdb: missing api key (set TMDB_API_KEY)")
	ErrNoExternalID  = errors.New("tmdb: item has no imdb id")
)

// Lookup returns the genre names of an item. An empty result with a nil error
// means the database knows nothing about the item.
type Lookup interface {
	Genres(ctx context.Context, item core.Item) ([]string, error)
}

var genreNames = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
}

// GenreName maps a TMDb genre id to its name; unknown ids become "Unknown (<id>)".
func GenreName(id int) string {
	if name, ok := genreNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", id)
}

// GenreNames maps ids in order.
func GenreNames(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, GenreName(id))
	}
	return names
}
