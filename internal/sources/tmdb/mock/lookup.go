package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/sources/tmdb"
)

// Lookup returns canned genres per item id and counts calls per id.
type Lookup struct {
	mu         sync.Mutex
	GenresByID map[string][]string
	ErrByID    map[string]error
	Calls      map[string]int
}

func (l *Lookup) Genres(ctx context.Context, item core.Item) ([]string, error) {
	_ = ctx
	l.mu.Lock()
	if l.Calls == nil {
		l.Calls = map[string]int{}
	}
	l.Calls[item.ID]++
	l.mu.Unlock()

	if l.ErrByID != nil {
		if err, ok := l.ErrByID[item.ID]; ok {
			return nil, err
		}
	}
	return l.GenresByID[item.ID], nil
}

var _ tmdb.Lookup = (*Lookup)(nil)
