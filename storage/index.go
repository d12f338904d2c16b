package storage

import (
	"sort"
	"sync"

	"github.com/arloliu/tachyon/labels"
)

// Index is the inverted label index: posting lists from (name, value) pairs
// to series IDs, plus the name/value enumerations backing the label metadata
// endpoints.
//
// Insert and Remove take the exclusive lock; Match and the enumerations take
// the shared lock. The index holds series IDs only, never series, so there
// are no reference cycles with the registry.
type Index struct {
	mu sync.RWMutex

	// postings maps label name -> label value -> set of series IDs.
	postings map[string]map[string]map[uint64]struct{}

	// all is the set of every indexed series ID, the candidate seed for
	// selectors with no positive matcher.
	all map[uint64]struct{}
}

// NewIndex creates an empty label index.
func NewIndex() *Index {
	return &Index{
		postings: make(map[string]map[string]map[uint64]struct{}),
		all:      make(map[uint64]struct{}),
	}
}

// Insert adds seriesID to the posting list of every label in lset.
func (ix *Index) Insert(seriesID uint64, lset labels.Labels) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.all[seriesID] = struct{}{}
	for l := range lset.All() {
		values, ok := ix.postings[l.Name]
		if !ok {
			values = make(map[string]map[uint64]struct{})
			ix.postings[l.Name] = values
		}
		ids, ok := values[l.Value]
		if !ok {
			ids = make(map[uint64]struct{})
			values[l.Value] = ids
		}
		ids[seriesID] = struct{}{}
	}
}

// Remove is the inverse of Insert, dropping empty posting lists as it goes.
func (ix *Index) Remove(seriesID uint64, lset labels.Labels) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	delete(ix.all, seriesID)
	for l := range lset.All() {
		values, ok := ix.postings[l.Name]
		if !ok {
			continue
		}
		ids, ok := values[l.Value]
		if !ok {
			continue
		}
		delete(ids, seriesID)
		if len(ids) == 0 {
			delete(values, l.Value)
		}
		if len(values) == 0 {
			delete(ix.postings, l.Name)
		}
	}
}

// Match resolves the matchers to the set of series IDs satisfying all of
// them, returned sorted ascending.
//
// Positive matchers (Eq, Regex) produce candidate sets that are intersected;
// Eq matchers read a single posting list, Regex matchers union the posting
// lists of every matching value. Negative matchers (NotEq, NotRegex) are then
// applied as filters over the candidates. For a negative matcher, a series
// without the matcher's label has the empty value for it, so NotEq(name, v)
// keeps series lacking the label entirely; positive matchers select only
// series that carry the label. The result is independent of matcher order, and adding
// a matcher can only shrink it.
func (ix *Index) Match(matchers ...*labels.Matcher) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var candidates map[uint64]struct{}

	for _, m := range matchers {
		if !m.IsPositive() {
			continue
		}

		set := ix.postingsForLocked(m)
		candidates = intersect(candidates, set)
		if len(candidates) == 0 {
			return nil
		}
	}

	if candidates == nil {
		// Negative-only (or empty) selector: start from every series.
		candidates = make(map[uint64]struct{}, len(ix.all))
		for id := range ix.all {
			candidates[id] = struct{}{}
		}
	}

	for _, m := range matchers {
		if m.IsPositive() {
			continue
		}
		ix.filterNegativeLocked(m, candidates)
		if len(candidates) == 0 {
			return nil
		}
	}

	out := make([]uint64, 0, len(candidates))
	for id := range candidates {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// postingsForLocked returns the series-ID set a positive matcher selects.
func (ix *Index) postingsForLocked(m *labels.Matcher) map[uint64]struct{} {
	values, ok := ix.postings[m.Name]
	if !ok {
		return nil
	}

	if m.Type == labels.MatchEq {
		return values[m.Value]
	}

	// Regex: union the posting lists of every matching value.
	union := make(map[uint64]struct{})
	for value, ids := range values {
		if !m.Matches(value) {
			continue
		}
		for id := range ids {
			union[id] = struct{}{}
		}
	}

	return union
}

// filterNegativeLocked removes candidates rejected by a negative matcher.
// A candidate's value for the matcher's label is the posting list it appears
// in, or the empty string when it carries the label not at all.
func (ix *Index) filterNegativeLocked(m *labels.Matcher, candidates map[uint64]struct{}) {
	values := ix.postings[m.Name]

	// Candidates holding the label with a rejected value.
	for value, ids := range values {
		if m.Matches(value) {
			continue
		}
		for id := range ids {
			delete(candidates, id)
		}
	}

	// Candidates lacking the label have the empty value for it.
	if !m.Matches("") {
		hasLabel := make(map[uint64]struct{})
		for _, ids := range values {
			for id := range ids {
				hasLabel[id] = struct{}{}
			}
		}
		for id := range candidates {
			if _, ok := hasLabel[id]; !ok {
				delete(candidates, id)
			}
		}
	}
}

// LabelNames returns all indexed label names, sorted.
func (ix *Index) LabelNames() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]string, 0, len(ix.postings))
	for name := range ix.postings {
		out = append(out, name)
	}
	sort.Strings(out)

	return out
}

// LabelValues returns all values of the given label name, sorted. An unknown
// name yields an empty slice, not an error.
func (ix *Index) LabelValues(name string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	values, ok := ix.postings[name]
	if !ok {
		return []string{}
	}

	out := make([]string, 0, len(values))
	for value := range values {
		out = append(out, value)
	}
	sort.Strings(out)

	return out
}

// intersect returns a ∩ b, treating a nil a as the universal set.
func intersect(a, b map[uint64]struct{}) map[uint64]struct{} {
	if a == nil {
		out := make(map[uint64]struct{}, len(b))
		for id := range b {
			out[id] = struct{}{}
		}

		return out
	}

	for id := range a {
		if _, ok := b[id]; !ok {
			delete(a, id)
		}
	}

	return a
}
