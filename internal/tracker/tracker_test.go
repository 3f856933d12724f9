package tracker

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type memStore struct {
	state State
	saves int
	err   error
}

func (m *memStore) Load(ctx context.Context) (State, error) {
	return m.state, nil
}

func (m *memStore) Save(ctx context.Context, state State) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.state = state
	return nil
}

func (m *memStore) Close() error { return nil }

func openTracker(t *testing.T, store Store, limit int) *Tracker {
	t.Helper()
	tr, err := Open(context.Background(), store, limit)
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	return tr
}

func TestRecordSentPutsNewestAtHead(t *testing.T) {
	tr := openTracker(t, &memStore{}, 10)
	tr.RecordSent([]string{"old", "mid", "new"})

	if diff := cmp.Diff([]string{"new", "mid", "old"}, tr.Sent()); diff != "" {
		t.Fatalf("sent order (-want +got):\n%s", diff)
	}
}

func TestRecordSentPromotesIgnoredIDs(t *testing.T) {
	tr := openTracker(t, &memStore{}, 10)
	tr.RecordIgnored([]string{"a", "b"})
	tr.RecordSent([]string{"a"})

	if diff := cmp.Diff([]string{"a"}, tr.Sent()); diff != "" {
		t.Fatalf("sent (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b"}, tr.Ignored()); diff != "" {
		t.Fatalf("ignored (-want +got):\n%s", diff)
	}
}

func TestRecordIgnoredNeverDowngradesSent(t *testing.T) {
	tr := openTracker(t, &memStore{}, 10)
	tr.RecordSent([]string{"x"})
	tr.RecordIgnored([]string{"x", "y"})

	if diff := cmp.Diff([]string{"x"}, tr.Sent()); diff != "" {
		t.Fatalf("sent (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"y"}, tr.Ignored()); diff != "" {
		t.Fatalf("ignored (-want +got):\n%s", diff)
	}
}

func TestRecordIgnoredMovesRepeatsToHead(t *testing.T) {
	tr := openTracker(t, &memStore{}, 10)
	tr.RecordIgnored([]string{"a", "b", "c"})
	tr.RecordIgnored([]string{"a"})

	if diff := cmp.Diff([]string{"a", "c", "b"}, tr.Ignored()); diff != "" {
		t.Fatalf("ignored (-want +got):\n%s", diff)
	}
}

func TestHistoryIsTrimmedOldestFirst(t *testing.T) {
	tr := openTracker(t, &memStore{}, 3)
	tr.RecordSent([]string{"1", "2", "3", "4", "5"})
	tr.RecordIgnored([]string{"a", "b", "c", "d"})

	if diff := cmp.Diff([]string{"5", "4", "3"}, tr.Sent()); diff != "" {
		t.Fatalf("sent (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"d", "c", "b"}, tr.Ignored()); diff != "" {
		t.Fatalf("ignored (-want +got):\n%s", diff)
	}
	if tr.IsKnown("1") || tr.IsKnown("a") {
		t.Fatalf("trimmed ids should no longer be known")
	}
}

func TestKnownIDsIsUnionOfBothLists(t *testing.T) {
	tr := openTracker(t, &memStore{}, 10)
	tr.RecordSent([]string{"s1"})
	tr.RecordIgnored([]string{"i1"})

	known := tr.KnownIDs()
	if len(known) != 2 {
		t.Fatalf("expected 2 known ids, got %d", len(known))
	}
	for _, id := range []string{"s1", "i1"} {
		if _, ok := known[id]; !ok {
			t.Fatalf("expected %q to be known", id)
		}
	}
}

func TestInvariantsHoldUnderRandomOperations(t *testing.T) {
	const limit = 7
	rng := rand.New(rand.NewSource(42))
	tr := openTracker(t, &memStore{}, limit)

	for step := 0; step < 2000; step++ {
		ids := make([]string, rng.Intn(5))
		for i := range ids {
			ids[i] = fmt.Sprintf("id-%d", rng.Intn(20))
		}
		everSent := map[string]bool{}
		for _, id := range tr.Sent() {
			everSent[id] = true
		}
		if rng.Intn(2) == 0 {
			tr.RecordSent(ids)
		} else {
			tr.RecordIgnored(ids)
		}

		sent, ignored := tr.Sent(), tr.Ignored()
		if len(sent) > limit || len(ignored) > limit {
			t.Fatalf("step %d: history bound violated: sent=%d ignored=%d", step, len(sent), len(ignored))
		}
		inSent := map[string]bool{}
		for _, id := range sent {
			if inSent[id] {
				t.Fatalf("step %d: duplicate %q in sent", step, id)
			}
			inSent[id] = true
		}
		inIgnored := map[string]bool{}
		for _, id := range ignored {
			if inIgnored[id] {
				t.Fatalf("step %d: duplicate %q in ignored", step, id)
			}
			if inSent[id] {
				t.Fatalf("step %d: %q is both sent and ignored", step, id)
			}
			if everSent[id] {
				t.Fatalf("step %d: sent id %q was downgraded to ignored", step, id)
			}
			inIgnored[id] = true
		}
	}
}

func TestOpenNormalizesLoadedState(t *testing.T) {
	store := &memStore{state: State{
		Sent:    []string{"a", "b", "a", ""},
		Ignored: []string{"b", "c", "c"},
	}}
	tr := openTracker(t, store, 10)

	if diff := cmp.Diff([]string{"a", "b"}, tr.Sent()); diff != "" {
		t.Fatalf("sent (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c"}, tr.Ignored()); diff != "" {
		t.Fatalf("ignored (-want +got):\n%s", diff)
	}
}

func TestSaveStampsLastRun(t *testing.T) {
	store := &memStore{}
	tr := openTracker(t, store, 10)
	fixed := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }
	tr.RecordSent([]string{"a"})

	if err := tr.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("expected one save, got %d", store.saves)
	}
	if store.state.LastRun == nil || !store.state.LastRun.Equal(fixed) {
		t.Fatalf("expected last_run %v, got %v", fixed, store.state.LastRun)
	}
	if got := tr.LastRun(); got == nil || !got.Equal(fixed) {
		t.Fatalf("expected tracker last run %v, got %v", fixed, got)
	}
}

func TestResetForgetsHistory(t *testing.T) {
	tr := openTracker(t, &memStore{}, 10)
	tr.RecordSent([]string{"a"})
	tr.RecordIgnored([]string{"b"})
	tr.Reset()
	if len(tr.KnownIDs()) != 0 {
		t.Fatalf("expected empty boundary set after reset")
	}
}

func TestOrderedSetCompactsTombstones(t *testing.T) {
	s := newOrderedSet()
	for i := 0; i < 500; i++ {
		s.pushFront(fmt.Sprintf("id-%d", i%10))
	}
	if s.len() != 10 {
		t.Fatalf("expected 10 live ids, got %d", s.len())
	}
	if used := len(s.entries) - s.start; used > 64 {
		t.Fatalf("expected compaction to bound storage, got %d slots", used)
	}
	want := []string{"id-9", "id-8", "id-7", "id-6", "id-5", "id-4", "id-3", "id-2", "id-1", "id-0"}
	if diff := cmp.Diff(want, s.newestFirst()); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}
