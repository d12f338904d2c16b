package labels

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/tachyon/errs"
)

func TestMatcher_Eq(t *testing.T) {
	m := MustMatcher(MatchEq, "zone", "a")

	require.True(t, m.Matches("a"))
	require.False(t, m.Matches("b"))
	require.False(t, m.Matches(""))
}

func TestMatcher_NotEq(t *testing.T) {
	m := MustMatcher(MatchNotEq, "zone", "a")

	require.False(t, m.Matches("a"))
	require.True(t, m.Matches("b"))
	// A missing label reads as the empty value and does not equal "a".
	require.True(t, m.Matches(""))
}

func TestMatcher_RegexIsAnchored(t *testing.T) {
	m := MustMatcher(MatchRegex, "zone", "a|b")

	require.True(t, m.Matches("a"))
	require.True(t, m.Matches("b"))
	require.False(t, m.Matches("ab"))
	require.False(t, m.Matches("xa"))
}

func TestMatcher_NotRegex(t *testing.T) {
	m := MustMatcher(MatchNotRegex, "env", "prod.*")

	require.False(t, m.Matches("prod"))
	require.False(t, m.Matches("production"))
	require.True(t, m.Matches("staging"))
}

func TestMatcher_InvalidRegexFails(t *testing.T) {
	_, err := NewMatcher(MatchRegex, "zone", "a[")
	require.ErrorIs(t, err, errs.ErrInvalidMatcher)
}

func TestMatcher_EmptyNameFails(t *testing.T) {
	_, err := NewMatcher(MatchEq, "", "v")
	require.ErrorIs(t, err, errs.ErrInvalidMatcher)
}

func TestMatcher_IsPositive(t *testing.T) {
	require.True(t, MustMatcher(MatchEq, "a", "b").IsPositive())
	require.True(t, MustMatcher(MatchRegex, "a", "b").IsPositive())
	require.False(t, MustMatcher(MatchNotEq, "a", "b").IsPositive())
	require.False(t, MustMatcher(MatchNotRegex, "a", "b").IsPositive())
}

func TestMatcher_String(t *testing.T) {
	require.Equal(t, `zone=~"a|b"`, MustMatcher(MatchRegex, "zone", "a|b").String())
	require.Equal(t, `zone!="a"`, MustMatcher(MatchNotEq, "zone", "a").String())
}
