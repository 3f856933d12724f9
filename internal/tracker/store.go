package tracker

import (
	"context"
	"time"
)

// State is the persisted digest state: two newest-first id lists and the time
// of the last successful save.
type State struct {
	Sent    []string   `json:"sent_ids"`
	Ignored []string   `json:"ignored_ids"`
	LastRun *time.Time `json:"last_run"`
}

// Store loads and saves digest state. Save must either fully replace the
// previous state or leave it untouched.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	Close() error
}

// normalize enforces the state invariants on data read from a store: no empty
// or duplicate ids, sent wins over ignored, both lists bounded by limit.
func normalize(state State, limit int) State {
	sent := newOrderedSetFromNewestFirst(state.Sent)
	ignored := newOrderedSetFromNewestFirst(state.Ignored)
	for _, id := range sent.newestFirst() {
		ignored.remove(id)
	}
	sent.trim(limit)
	ignored.trim(limit)
	return State{
		Sent:    sent.newestFirst(),
		Ignored: ignored.newestFirst(),
		LastRun: state.LastRun,
	}
}
