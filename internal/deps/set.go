package deps

import "sort"

// orderedSet keeps first-seen insertion order
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func sortByPos[T any](items []T, pos func(T) int) {
	sort.SliceStable(items, func(i, j int) bool {
		return pos(items[i]) < pos(items[j])
	})
}
