// Package labels implements the label model identifying a time series.
//
// A label set is an unordered collection of (name, value) pairs with unique
// names. Two label sets constructed in different insertion orders are equal
// and produce the same series ID: identity is always derived from the
// canonical string form, which sorts labels lexicographically by name. Hashing
// any other rendering of the set is incorrect and was the source of a
// read-after-write bug in an earlier implementation of this engine.
package labels

import (
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"

	"github.com/arloliu/tachyon/errs"
	"github.com/arloliu/tachyon/internal/hash"
)

// MetricName is the reserved label name carrying the metric identity.
const MetricName = "__name__"

// Label is a single name/value pair.
type Label struct {
	Name  string
	Value string
}

// Labels is a set of labels with unique names, kept sorted by name.
//
// The zero value is an empty, usable label set. Labels caches its canonical
// string and hash; both are invalidated by Set. Labels is not safe for
// concurrent mutation.
type Labels struct {
	pairs     []Label
	canonical string
	id        uint64
}

// New creates a label set from the given labels. Later duplicates overwrite
// earlier ones. It returns an error if any label has an empty name or value.
func New(ls ...Label) (Labels, error) {
	var set Labels
	for _, l := range ls {
		if err := set.Set(l.Name, l.Value); err != nil {
			return Labels{}, err
		}
	}

	return set, nil
}

// FromMap creates a label set from a name→value map.
func FromMap(m map[string]string) (Labels, error) {
	var set Labels
	for name, value := range m {
		if err := set.Set(name, value); err != nil {
			return Labels{}, err
		}
	}

	return set, nil
}

// FromStrings creates a label set from alternating name/value pairs and panics
// on malformed input. It is intended for tests and static initialization.
func FromStrings(ss ...string) Labels {
	if len(ss)%2 != 0 {
		panic("labels.FromStrings: odd number of strings")
	}

	var set Labels
	for i := 0; i < len(ss); i += 2 {
		if err := set.Set(ss[i], ss[i+1]); err != nil {
			panic(fmt.Sprintf("labels.FromStrings: %v", err))
		}
	}

	return set
}

// Set inserts the label or overwrites the value of an existing one.
// The canonical string and ID caches are invalidated.
func (ls *Labels) Set(name, value string) error {
	if name == "" {
		return errs.ErrEmptyLabelName
	}
	if value == "" {
		return errs.ErrEmptyLabelValue
	}

	ls.canonical = ""
	ls.id = 0

	idx := sort.Search(len(ls.pairs), func(i int) bool {
		return ls.pairs[i].Name >= name
	})
	if idx < len(ls.pairs) && ls.pairs[idx].Name == name {
		ls.pairs[idx].Value = value
		return nil
	}

	ls.pairs = append(ls.pairs, Label{})
	copy(ls.pairs[idx+1:], ls.pairs[idx:])
	ls.pairs[idx] = Label{Name: name, Value: value}

	return nil
}

// Get returns the value of the named label and whether it is present.
func (ls Labels) Get(name string) (string, bool) {
	idx := sort.Search(len(ls.pairs), func(i int) bool {
		return ls.pairs[i].Name >= name
	})
	if idx < len(ls.pairs) && ls.pairs[idx].Name == name {
		return ls.pairs[idx].Value, true
	}

	return "", false
}

// Has reports whether the named label is present.
func (ls Labels) Has(name string) bool {
	_, ok := ls.Get(name)
	return ok
}

// Len returns the number of labels in the set.
func (ls Labels) Len() int {
	return len(ls.pairs)
}

// IsEmpty reports whether the set holds no labels.
func (ls Labels) IsEmpty() bool {
	return len(ls.pairs) == 0
}

// MetricName returns the value of the reserved __name__ label, or "".
func (ls Labels) MetricName() string {
	v, _ := ls.Get(MetricName)
	return v
}

// All returns an iterator over the labels in canonical (name-sorted) order.
func (ls Labels) All() iter.Seq[Label] {
	return func(yield func(Label) bool) {
		for _, l := range ls.pairs {
			if !yield(l) {
				return
			}
		}
	}
}

// Canonical returns the canonical string form of the label set:
// labels sorted lexicographically by name, values quoted, rendered as
// {name1="v1",name2="v2"}. This form is the sole input to the series-ID hash.
//
// The rendering is computed once and cached for the lifetime of the set.
func (ls *Labels) Canonical() string {
	if ls.canonical != "" || len(ls.pairs) == 0 {
		if ls.canonical == "" {
			ls.canonical = "{}"
		}

		return ls.canonical
	}

	var sb strings.Builder
	sb.Grow(2 + len(ls.pairs)*16)
	sb.WriteByte('{')
	for i, l := range ls.pairs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(l.Name)
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(l.Value))
	}
	sb.WriteByte('}')

	ls.canonical = sb.String()

	return ls.canonical
}

// ID returns the 64-bit series identifier: the xxHash64 of Canonical().
//
// The ID is deterministic across process runs and insensitive to label
// insertion order. Collisions are resolved by the series registry, which
// stores the full label set and verifies equality on lookup.
func (ls *Labels) ID() uint64 {
	if ls.id == 0 {
		ls.id = hash.ID(ls.Canonical())
	}

	return ls.id
}

// Equal reports whether both sets hold the same (name, value) pairs,
// independent of insertion order.
func (ls Labels) Equal(other Labels) bool {
	if len(ls.pairs) != len(other.pairs) {
		return false
	}
	for i := range ls.pairs {
		if ls.pairs[i] != other.pairs[i] {
			return false
		}
	}

	return true
}

// Map returns the labels as a name→value map.
func (ls Labels) Map() map[string]string {
	m := make(map[string]string, len(ls.pairs))
	for _, l := range ls.pairs {
		m[l.Name] = l.Value
	}

	return m
}

// Clone returns an independent copy of the label set.
func (ls Labels) Clone() Labels {
	pairs := make([]Label, len(ls.pairs))
	copy(pairs, ls.pairs)

	return Labels{pairs: pairs, canonical: ls.canonical, id: ls.id}
}

// String implements fmt.Stringer using the canonical form.
func (ls Labels) String() string {
	c := ls
	return (&c).Canonical()
}

// Parse parses the canonical string form produced by Canonical back into a
// label set. It is the inverse used when decoding block label dictionaries.
func Parse(s string) (Labels, error) {
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return Labels{}, fmt.Errorf("%w: %q", errs.ErrInvalidSelector, s)
	}

	var set Labels
	rest := s[1 : len(s)-1]
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return Labels{}, fmt.Errorf("%w: missing '=' in %q", errs.ErrInvalidSelector, s)
		}
		name := rest[:eq]
		rest = rest[eq+1:]
		if rest == "" || rest[0] != '"' {
			return Labels{}, fmt.Errorf("%w: unquoted value in %q", errs.ErrInvalidSelector, s)
		}

		value, tail, err := unquotePrefix(rest)
		if err != nil {
			return Labels{}, fmt.Errorf("%w: %q: %v", errs.ErrInvalidSelector, s, err)
		}
		rest = tail
		if rest != "" {
			if rest[0] != ',' {
				return Labels{}, fmt.Errorf("%w: expected ',' in %q", errs.ErrInvalidSelector, s)
			}
			rest = rest[1:]
		}

		if err := set.Set(name, value); err != nil {
			return Labels{}, err
		}
	}

	return set, nil
}

// unquotePrefix unquotes the leading Go-quoted string of s and returns the
// unquoted value plus the remainder after the closing quote.
func unquotePrefix(s string) (value, rest string, err error) {
	end := -1
	for i := 1; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '"' {
			end = i
			break
		}
	}
	if end < 0 {
		return "", "", fmt.Errorf("unterminated quoted string")
	}

	value, err = strconv.Unquote(s[:end+1])
	if err != nil {
		return "", "", err
	}

	return value, s[end+1:], nil
}
