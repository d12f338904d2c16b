package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collectInt64(dec ColumnarDecoder[int64], data []byte, count int) []int64 {
	out := make([]int64, 0, count)
	for ts := range dec.All(data, count) {
		out = append(out, ts)
	}

	return out
}

func TestTimestampDeltaEncoder_NewEncoder(t *testing.T) {
	encoder := NewTimestampDeltaEncoder()

	require.NotNil(t, encoder)
	require.Equal(t, 0, encoder.Len())
	require.Equal(t, 0, encoder.Size())
	require.Empty(t, encoder.Bytes())
}

func TestTimestampDeltaEncoder_SingleTimestamp(t *testing.T) {
	encoder := NewTimestampDeltaEncoder()
	defer encoder.Finish()

	timestamp := int64(1672531200000) // 2023-01-01 00:00:00 UTC in milliseconds
	encoder.Write(timestamp)

	require.Equal(t, 1, encoder.Len())
	require.Greater(t, encoder.Size(), 0)

	decoded := collectInt64(NewTimestampDeltaDecoder(), encoder.Bytes(), 1)
	require.Equal(t, []int64{timestamp}, decoded)
}

func TestTimestampDeltaEncoder_RegularIntervals(t *testing.T) {
	encoder := NewTimestampDeltaEncoder()
	defer encoder.Finish()

	timestamps := []int64{
		1672531200000,
		1672531201000, // +1s
		1672531202000, // +1s
		1672531205000, // +3s
	}

	for _, ts := range timestamps {
		encoder.Write(ts)
	}

	require.Equal(t, len(timestamps), encoder.Len())

	decoded := collectInt64(NewTimestampDeltaDecoder(), encoder.Bytes(), len(timestamps))
	require.Equal(t, timestamps, decoded)
}

func TestTimestampDeltaEncoder_WriteSlice(t *testing.T) {
	encoder := NewTimestampDeltaEncoder()
	defer encoder.Finish()

	timestamps := []int64{
		1672531200000,
		1672531200100, // +100ms
		1672531200150, // +50ms
		1672531200300, // +150ms
		1672531205000, // +4.7s
	}

	encoder.WriteSlice(timestamps)

	require.Equal(t, len(timestamps), encoder.Len())

	decoded := collectInt64(NewTimestampDeltaDecoder(), encoder.Bytes(), len(timestamps))
	require.Equal(t, timestamps, decoded)
}

func TestTimestampDeltaEncoder_BackwardJumps(t *testing.T) {
	encoder := NewTimestampDeltaEncoder()
	defer encoder.Finish()

	// Deltas can be negative; zigzag encoding must round-trip them.
	timestamps := []int64{1000, 900, 950, 800, 1200}
	encoder.WriteSlice(timestamps)

	decoded := collectInt64(NewTimestampDeltaDecoder(), encoder.Bytes(), len(timestamps))
	require.Equal(t, timestamps, decoded)
}

func TestTimestampDeltaEncoder_RegularIntervalsCompress(t *testing.T) {
	encoder := NewTimestampDeltaEncoder()
	defer encoder.Finish()

	base := int64(1672531200000)
	timestamps := make([]int64, 100)
	for i := range timestamps {
		timestamps[i] = base + int64(i)*1000
	}
	encoder.WriteSlice(timestamps)

	// Regular intervals cost roughly one byte per point after the first two.
	require.Less(t, encoder.Size(), 8*len(timestamps)/4)

	decoded := collectInt64(NewTimestampDeltaDecoder(), encoder.Bytes(), len(timestamps))
	require.Equal(t, timestamps, decoded)
}

func TestTimestampDeltaEncoder_MultipleSequences(t *testing.T) {
	encoder := NewTimestampDeltaEncoder()
	defer encoder.Finish()

	first := []int64{1000, 2000, 3000}
	second := []int64{500, 600, 700}

	encoder.WriteSlice(first)
	firstSize := encoder.Size()
	encoder.Reset()
	encoder.WriteSlice(second)

	require.Equal(t, 6, encoder.Len())

	data := encoder.Bytes()
	decodedFirst := collectInt64(NewTimestampDeltaDecoder(), data[:firstSize], len(first))
	require.Equal(t, first, decodedFirst)

	decodedSecond := collectInt64(NewTimestampDeltaDecoder(), data[firstSize:], len(second))
	require.Equal(t, second, decodedSecond)
}

func TestTimestampDeltaDecoder_At(t *testing.T) {
	encoder := NewTimestampDeltaEncoder()
	defer encoder.Finish()

	timestamps := []int64{100, 250, 400, 1000, 1001}
	encoder.WriteSlice(timestamps)

	decoder := NewTimestampDeltaDecoder()
	for i, want := range timestamps {
		got, ok := decoder.At(encoder.Bytes(), i, len(timestamps))
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := decoder.At(encoder.Bytes(), len(timestamps), len(timestamps))
	require.False(t, ok)
	_, ok = decoder.At(encoder.Bytes(), -1, len(timestamps))
	require.False(t, ok)
}

func TestTimestampDeltaDecoder_EmptyData(t *testing.T) {
	decoder := NewTimestampDeltaDecoder()

	require.Empty(t, collectInt64(decoder, nil, 5))
	require.Empty(t, collectInt64(decoder, []byte{0x01}, 0))
}
