package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/tachyon/labels"
)

func TestParseTime(t *testing.T) {
	got, err := ParseTime("1672531200", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1672531200000), got)

	got, err = ParseTime("1672531200.5", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1672531200500), got)

	got, err = ParseTime("", 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), got)

	_, err = ParseTime("yesterday", 0)
	require.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	cases := map[string]int64{
		"30":   30_000,
		"30s":  30_000,
		"5m":   300_000,
		"1.5h": 5_400_000,
		"2d":   172_800_000,
		"":     0,
	}

	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, "input %q", in)
		require.Equal(t, want, got, "input %q", in)
	}

	_, err := ParseDuration("5x")
	require.Error(t, err)
}

func TestParseSelector_MetricNameOnly(t *testing.T) {
	matchers, err := ParseSelector("http_requests_total")
	require.NoError(t, err)
	require.Len(t, matchers, 1)
	require.Equal(t, labels.MatchEq, matchers[0].Type)
	require.Equal(t, labels.MetricName, matchers[0].Name)
	require.Equal(t, "http_requests_total", matchers[0].Value)
}

func TestParseSelector_NameAndMatchers(t *testing.T) {
	matchers, err := ParseSelector(`up{zone!="a", job=~"web|db", env!~"dev.*"}`)
	require.NoError(t, err)
	require.Len(t, matchers, 4)

	require.Equal(t, labels.MatchEq, matchers[0].Type)
	require.Equal(t, labels.MatchNotEq, matchers[1].Type)
	require.Equal(t, "zone", matchers[1].Name)
	require.Equal(t, labels.MatchRegex, matchers[2].Type)
	require.Equal(t, "web|db", matchers[2].Value)
	require.Equal(t, labels.MatchNotRegex, matchers[3].Type)
}

func TestParseSelector_BracesOnly(t *testing.T) {
	matchers, err := ParseSelector(`{__name__="up",zone="a"}`)
	require.NoError(t, err)
	require.Len(t, matchers, 2)
}

func TestParseSelector_EscapedValue(t *testing.T) {
	matchers, err := ParseSelector(`{path="C:\\temp",quote="\""}`)
	require.NoError(t, err)
	require.Len(t, matchers, 2)
	require.Equal(t, `C:\temp`, matchers[0].Value)
	require.Equal(t, `"`, matchers[1].Value)
}

func TestParseSelector_Malformed(t *testing.T) {
	for _, in := range []string{
		"", "{}", "{zone=a}", `{zone="a"`, `up{`, `{="v"}`, `{zone~"a"}`, `1bad`,
	} {
		_, err := ParseSelector(in)
		require.Error(t, err, "input %q", in)
	}
}
