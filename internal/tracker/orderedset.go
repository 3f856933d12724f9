package tracker

// orderedSet keeps ids newest-first with O(1) membership, O(1) insert-at-head
// and O(1)-amortized removal and oldest-first trimming.
//
// entries is stored oldest→newest so that inserting at the logical head is an
// append. Removed slots become tombstones ("") and are compacted away once they
// outnumber the live entries.
type orderedSet struct {
	entries []string
	index   map[string]int
	start   int
	live    int
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: map[string]int{}}
}

// newOrderedSetFromNewestFirst builds a set from a newest-first list, keeping
// the first (newest) occurrence of duplicated ids.
func newOrderedSetFromNewestFirst(ids []string) *orderedSet {
	s := newOrderedSet()
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		if id == "" {
			continue
		}
		s.pushFront(id)
	}
	return s
}

func (s *orderedSet) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *orderedSet) len() int {
	return s.live
}

// pushFront moves id to the head, inserting it if absent.
func (s *orderedSet) pushFront(id string) {
	if id == "" {
		return
	}
	s.remove(id)
	s.entries = append(s.entries, id)
	s.index[id] = len(s.entries) - 1
	s.live++
}

func (s *orderedSet) remove(id string) bool {
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	s.entries[pos] = ""
	delete(s.index, id)
	s.live--
	s.maybeCompact()
	return true
}

// trim drops the oldest entries until at most limit remain. A limit <= 0 keeps everything.
func (s *orderedSet) trim(limit int) []string {
	if limit <= 0 {
		return nil
	}
	var dropped []string
	for s.live > limit && s.start < len(s.entries) {
		id := s.entries[s.start]
		s.entries[s.start] = ""
		s.start++
		if id == "" {
			continue
		}
		delete(s.index, id)
		s.live--
		dropped = append(dropped, id)
	}
	s.maybeCompact()
	return dropped
}

// newestFirst returns a copy of the live ids, newest at index 0.
func (s *orderedSet) newestFirst() []string {
	out := make([]string, 0, s.live)
	for i := len(s.entries) - 1; i >= s.start; i-- {
		if id := s.entries[i]; id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (s *orderedSet) maybeCompact() {
	used := len(s.entries) - s.start
	if used < 64 || used <= 2*s.live {
		return
	}
	compacted := make([]string, 0, s.live)
	for i := s.start; i < len(s.entries); i++ {
		if id := s.entries[i]; id != "" {
			s.index[id] = len(compacted)
			compacted = append(compacted, id)
		}
	}
	s.entries = compacted
	s.start = 0
}
