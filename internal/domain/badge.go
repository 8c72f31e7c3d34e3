package domain

import "sort"

// BadgeSet holds badge names with set semantics; adding an existing badge is a no-op.
type BadgeSet map[string]struct{}

// NewBadgeSet builds a set from a list, dropping duplicates and empty names.
func NewBadgeSet(names ...string) BadgeSet {
	set := make(BadgeSet, len(names))
	for _, name := range names {
		set.Add(name)
	}
	return set
}

// Add inserts the badge and reports whether the set changed.
func (s BadgeSet) Add(name string) bool {
	if name == "" {
		return false
	}
	if _, ok := s[name]; ok {
		return false
	}
	s[name] = struct{}{}
	return true
}

// Has reports membership.
func (s BadgeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order, for storage and responses.
func (s BadgeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set.
func (s BadgeSet) Clone() BadgeSet {
	out := make(BadgeSet, len(s))
	for name := range s {
		out[name] = struct{}{}
	}
	return out
}
