package encoding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func collectStrings(dec StringDictDecoder, data []byte, count int) []string {
	out := make([]string, 0, count)
	for s := range dec.All(data, count) {
		out = append(out, s)
	}

	return out
}

func TestStringDictEncoder_RoundTrip(t *testing.T) {
	encoder := NewStringDictEncoder()
	defer encoder.Finish()

	entries := []string{
		`{__name__="up",job="node"}`,
		`{__name__="up",job="push"}`,
		`{}`,
	}
	encoder.WriteSlice(entries)

	require.Equal(t, len(entries), encoder.Len())

	decoded := collectStrings(NewStringDictDecoder(), encoder.Bytes(), len(entries))
	require.Equal(t, entries, decoded)
}

func TestStringDictEncoder_EmptyDictionary(t *testing.T) {
	encoder := NewStringDictEncoder()
	defer encoder.Finish()

	require.Equal(t, 0, encoder.Len())
	require.Empty(t, encoder.Bytes())

	decoded := collectStrings(NewStringDictDecoder(), encoder.Bytes(), 0)
	require.Empty(t, decoded)
}

func TestStringDictEncoder_EmptyAndLongStrings(t *testing.T) {
	encoder := NewStringDictEncoder()
	defer encoder.Finish()

	long := strings.Repeat("x", 100000)
	entries := []string{"", long, "tail"}
	encoder.WriteSlice(entries)

	decoded := collectStrings(NewStringDictDecoder(), encoder.Bytes(), len(entries))
	require.Equal(t, entries, decoded)
}

func TestStringDictDecoder_At(t *testing.T) {
	encoder := NewStringDictEncoder()
	defer encoder.Finish()

	entries := []string{"alpha", "beta", "gamma"}
	encoder.WriteSlice(entries)

	decoder := NewStringDictDecoder()
	got, ok := decoder.At(encoder.Bytes(), 1, len(entries))
	require.True(t, ok)
	require.Equal(t, "beta", got)

	_, ok = decoder.At(encoder.Bytes(), 3, len(entries))
	require.False(t, ok)
}

func TestStringDictDecoder_TruncatedData(t *testing.T) {
	encoder := NewStringDictEncoder()
	defer encoder.Finish()

	encoder.Write("hello")
	data := encoder.Bytes()

	decoded := collectStrings(NewStringDictDecoder(), data[:3], 1)
	require.Empty(t, decoded)
}
