// Package tracker records which listing items were already handled so later
// runs can stop crawling at the first known id.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bakkerme/posterdigest/internal/core"
)

const DefaultHistoryLimit = 500

// Tracker is the in-memory digest state plus the store it was loaded from.
// Mutations only touch memory; Save persists the whole state at once.
type Tracker struct {
	mu      sync.Mutex
	store   Store
	limit   int
	sent    *orderedSet
	ignored *orderedSet
	lastRun *time.Time
	now     func() time.Time
}

// Open loads the state from store. A store that recovers from corruption
// returns an empty state rather than an error.
func Open(ctx context.Context, store Store, historyLimit int) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("tracker: store is required")
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracker: load state: %w", err)
	}
	state = normalize(state, historyLimit)
	t := &Tracker{
		store:   store,
		limit:   historyLimit,
		sent:    newOrderedSetFromNewestFirst(state.Sent),
		ignored: newOrderedSetFromNewestFirst(state.Ignored),
		lastRun: state.LastRun,
		now:     time.Now,
	}
	core.LoggerFromContext(ctx).Info(
		"digest state loaded",
		"sent", t.sent.len(),
		"ignored", t.ignored.len(),
		"history_limit", historyLimit,
	)
	return t, nil
}

// KnownIDs returns the boundary set: every id that is sent or ignored.
func (t *Tracker) KnownIDs() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	known := make(map[string]struct{}, t.sent.len()+t.ignored.len())
	for id := range t.sent.index {
		known[id] = struct{}{}
	}
	for id := range t.ignored.index {
		known[id] = struct{}{}
	}
	return known
}

// IsKnown reports whether id is in the boundary set.
func (t *Tracker) IsKnown(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent.has(id) || t.ignored.has(id)
}

// RecordSent marks ids as delivered. ids are ordered oldest→newest; each one is
// moved to the head of the sent list, so the newest ends up first.
func (t *Tracker) RecordSent(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		t.ignored.remove(id)
		t.sent.pushFront(id)
	}
	t.trimLocked()
}

// RecordIgnored marks ids as handled without delivery. ids are ordered
// oldest→newest. Ids already sent are left alone.
func (t *Tracker) RecordIgnored(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if id == "" || t.sent.has(id) {
			continue
		}
		t.ignored.pushFront(id)
	}
	t.trimLocked()
}

func (t *Tracker) trimLocked() {
	t.sent.trim(t.limit)
	t.ignored.trim(t.limit)
}

// Sent returns the sent ids, newest first.
func (t *Tracker) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent.newestFirst()
}

// Ignored returns the ignored ids, newest first.
func (t *Tracker) Ignored() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ignored.newestFirst()
}

func (t *Tracker) LastRun() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastRun == nil {
		return nil
	}
	lastRun := *t.lastRun
	return &lastRun
}

// Reset forgets all history. The change is persisted by the next Save.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = newOrderedSet()
	t.ignored = newOrderedSet()
}

func (t *Tracker) snapshotLocked() State {
	state := State{
		Sent:    t.sent.newestFirst(),
		Ignored: t.ignored.newestFirst(),
	}
	if t.lastRun != nil {
		lastRun := *t.lastRun
		state.LastRun = &lastRun
	}
	return state
}

// Save stamps last_run and persists the state through the store.
func (t *Tracker) Save(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	state := t.snapshotLocked()
	state.LastRun = &now
	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("tracker: save state: %w", err)
	}
	t.lastRun = &now
	return nil
}

func (t *Tracker) Close() error {
	if t == nil || t.store == nil {
		return nil
	}
	return t.store.Close()
}
