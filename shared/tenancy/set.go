package tenancy

import (
	"sort"

	"github.com/google/uuid"
)

// Set is an unordered set of tenant ids
type Set map[uuid.UUID]struct{}

// NewSet builds a set from ids
func NewSet(ids ...uuid.UUID) Set {
	s := make(Set, len(ids))
	s.Add(ids...)
	return s
}

func (s Set) Add(ids ...uuid.UUID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s Set) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// IDs returns the members in a stable order, suitable for IN clauses
func (s Set) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
