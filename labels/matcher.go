package labels

import (
	"fmt"
	"regexp"

	"github.com/arloliu/tachyon/errs"
)

// MatchType is the kind of predicate a Matcher applies to one label.
type MatchType uint8

const (
	MatchEq MatchType = iota
	MatchNotEq
	MatchRegex
	MatchNotRegex
)

func (t MatchType) String() string {
	switch t {
	case MatchEq:
		return "="
	case MatchNotEq:
		return "!="
	case MatchRegex:
		return "=~"
	case MatchNotRegex:
		return "!~"
	default:
		return "?"
	}
}

// Matcher is a predicate over a single label.
//
// Regex matchers are fully anchored: the pattern must match the whole label
// value, mirroring the Prometheus selector semantics.
type Matcher struct {
	Type  MatchType
	Name  string
	Value string

	re *regexp.Regexp
}

// NewMatcher creates a matcher. Regex patterns are compiled eagerly and
// anchored; an empty name or an invalid pattern fails with ErrInvalidMatcher.
func NewMatcher(t MatchType, name, value string) (*Matcher, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty label name", errs.ErrInvalidMatcher)
	}

	m := &Matcher{Type: t, Name: name, Value: value}
	if t == MatchRegex || t == MatchNotRegex {
		re, err := regexp.Compile("^(?:" + value + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidMatcher, err)
		}
		m.re = re
	}

	return m, nil
}

// MustMatcher is like NewMatcher but panics on error. For tests and static
// matcher tables.
func MustMatcher(t MatchType, name, value string) *Matcher {
	m, err := NewMatcher(t, name, value)
	if err != nil {
		panic(err)
	}

	return m
}

// Matches reports whether the given label value satisfies the matcher.
func (m *Matcher) Matches(value string) bool {
	switch m.Type {
	case MatchEq:
		return value == m.Value
	case MatchNotEq:
		return value != m.Value
	case MatchRegex:
		return m.re.MatchString(value)
	case MatchNotRegex:
		return !m.re.MatchString(value)
	default:
		return false
	}
}

// IsPositive reports whether the matcher narrows the candidate set on its own
// (Eq and Regex). Negative matchers are applied as filters over candidates
// produced by positive ones.
func (m *Matcher) IsPositive() bool {
	return m.Type == MatchEq || m.Type == MatchRegex
}

// String renders the matcher in selector syntax, e.g. zone=~"a|b".
func (m *Matcher) String() string {
	return fmt.Sprintf("%s%s%q", m.Name, m.Type, m.Value)
}
