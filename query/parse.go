package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/arloliu/tachyon/errs"
	"github.com/arloliu/tachyon/labels"
)

// ParseTime parses a Prometheus-style time parameter: a float number of
// seconds since the Unix epoch. Empty input yields the provided default.
func ParseTime(s string, defaultMs int64) (int64, error) {
	if s == "" {
		return defaultMs, nil
	}

	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time %q", errs.ErrInvalidSelector, s)
	}

	return int64(sec * 1000), nil
}

// ParseDuration parses a duration parameter: a bare number of seconds or a
// number with one of the suffixes s, m, h, d.
func ParseDuration(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	mult := int64(1000)
	num := s
	switch s[len(s)-1] {
	case 's':
		num = s[:len(s)-1]
	case 'm':
		num, mult = s[:len(s)-1], 60*1000
	case 'h':
		num, mult = s[:len(s)-1], 3600*1000
	case 'd':
		num, mult = s[:len(s)-1], 24*3600*1000
	}

	val, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid duration %q", errs.ErrInvalidSelector, s)
	}

	return int64(val * float64(mult)), nil
}

// ParseSelector parses a series selector of the form
//
//	metric_name{label="value",other!="x",re=~"a|b",nre!~"c.*"}
//
// into matchers. Both the metric name and the brace section are optional, but
// the selector must contain at least one matcher.
func ParseSelector(s string) ([]*labels.Matcher, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty selector", errs.ErrInvalidSelector)
	}

	var matchers []*labels.Matcher

	brace := strings.IndexByte(s, '{')
	name := s
	rest := ""
	if brace >= 0 {
		name = s[:brace]
		rest = s[brace:]
	}

	if name != "" {
		if !isValidName(name) {
			return nil, fmt.Errorf("%w: invalid metric name %q", errs.ErrInvalidSelector, name)
		}
		m, err := labels.NewMatcher(labels.MatchEq, labels.MetricName, name)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}

	if rest != "" {
		if !strings.HasSuffix(rest, "}") {
			return nil, fmt.Errorf("%w: unterminated selector %q", errs.ErrInvalidSelector, s)
		}
		inner, err := parseMatcherList(rest[1 : len(rest)-1])
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, inner...)
	}

	if len(matchers) == 0 {
		return nil, fmt.Errorf("%w: selector matches nothing: %q", errs.ErrInvalidSelector, s)
	}

	return matchers, nil
}

// parseMatcherList parses the comma-separated body of a brace selector.
func parseMatcherList(s string) ([]*labels.Matcher, error) {
	var matchers []*labels.Matcher

	rest := strings.TrimSpace(s)
	for rest != "" {
		// Label name.
		i := 0
		for i < len(rest) && (rest[i] == '_' || unicode.IsLetter(rune(rest[i])) || (i > 0 && unicode.IsDigit(rune(rest[i])))) {
			i++
		}
		if i == 0 {
			return nil, fmt.Errorf("%w: expected label name at %q", errs.ErrInvalidSelector, rest)
		}
		name := rest[:i]
		rest = strings.TrimSpace(rest[i:])

		// Operator.
		var mt labels.MatchType
		switch {
		case strings.HasPrefix(rest, "=~"):
			mt, rest = labels.MatchRegex, rest[2:]
		case strings.HasPrefix(rest, "!~"):
			mt, rest = labels.MatchNotRegex, rest[2:]
		case strings.HasPrefix(rest, "!="):
			mt, rest = labels.MatchNotEq, rest[2:]
		case strings.HasPrefix(rest, "="):
			mt, rest = labels.MatchEq, rest[1:]
		default:
			return nil, fmt.Errorf("%w: expected operator at %q", errs.ErrInvalidSelector, rest)
		}
		rest = strings.TrimSpace(rest)

		// Quoted value.
		if rest == "" || rest[0] != '"' {
			return nil, fmt.Errorf("%w: expected quoted value at %q", errs.ErrInvalidSelector, rest)
		}
		end := -1
		for j := 1; j < len(rest); j++ {
			if rest[j] == '\\' {
				j++
				continue
			}
			if rest[j] == '"' {
				end = j
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated value at %q", errs.ErrInvalidSelector, rest)
		}
		value, err := strconv.Unquote(rest[:end+1])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidSelector, err)
		}
		rest = strings.TrimSpace(rest[end+1:])

		m, err := labels.NewMatcher(mt, name, value)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)

		if rest != "" {
			if rest[0] != ',' {
				return nil, fmt.Errorf("%w: expected ',' at %q", errs.ErrInvalidSelector, rest)
			}
			rest = strings.TrimSpace(rest[1:])
		}
	}

	return matchers, nil
}

// isValidName reports whether s is a valid metric identifier.
func isValidName(s string) bool {
	for i, r := range s {
		if r == '_' || r == ':' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}

		return false
	}

	return s != ""
}
