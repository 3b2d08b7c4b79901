package livefeed

// SeenSet records the unique ids already applied for one event category.
// It is not safe for concurrent use; Feed guards its sets.
type SeenSet struct {
	ids map[UID]struct{}
}

// NewSeenSet returns an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[UID]struct{})}
}

// Add records uid and reports whether it was not present before.
func (s *SeenSet) Add(uid UID) bool {
	if _, ok := s.ids[uid]; ok {
		return false
	}
	s.ids[uid] = struct{}{}
	return true
}

func (s *SeenSet) Has(uid UID) bool {
	_, ok := s.ids[uid]
	return ok
}

func (s *SeenSet) Len() int { return len(s.ids) }
