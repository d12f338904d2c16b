package encoding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func collectFloat64(dec ColumnarDecoder[float64], data []byte, count int) []float64 {
	out := make([]float64, 0, count)
	for v := range dec.All(data, count) {
		out = append(out, v)
	}

	return out
}

func requireSameBits(t *testing.T, want, got []float64) {
	t.Helper()
	require.Equal(t, len(want), len(got))
	for i := range want {
		require.Equal(t, math.Float64bits(want[i]), math.Float64bits(got[i]), "value %d", i)
	}
}

func TestValueGorillaEncoder_SingleValue(t *testing.T) {
	encoder := NewValueGorillaEncoder()
	defer encoder.Finish()

	encoder.Write(3.14159)

	require.Equal(t, 1, encoder.Len())

	decoded := collectFloat64(NewValueGorillaDecoder(), encoder.Bytes(), 1)
	requireSameBits(t, []float64{3.14159}, decoded)
}

func TestValueGorillaEncoder_ConstantValues(t *testing.T) {
	encoder := NewValueGorillaEncoder()
	defer encoder.Finish()

	values := make([]float64, 100)
	for i := range values {
		values[i] = 42.0
	}
	encoder.WriteSlice(values)

	// Unchanged values cost one bit each after the first.
	require.Less(t, encoder.Size()+8, 8*len(values))

	decoded := collectFloat64(NewValueGorillaDecoder(), encoder.Bytes(), len(values))
	requireSameBits(t, values, decoded)
}

func TestValueGorillaEncoder_SlowlyChangingValues(t *testing.T) {
	encoder := NewValueGorillaEncoder()
	defer encoder.Finish()

	values := make([]float64, 120)
	for i := range values {
		values[i] = 100.0 + 0.1*float64(i)
	}
	encoder.WriteSlice(values)

	decoded := collectFloat64(NewValueGorillaDecoder(), encoder.Bytes(), len(values))
	requireSameBits(t, values, decoded)
}

func TestValueGorillaEncoder_MixedMagnitudes(t *testing.T) {
	encoder := NewValueGorillaEncoder()
	defer encoder.Finish()

	values := []float64{
		0, 1, -1, 1e-300, 1e300, math.MaxFloat64, math.SmallestNonzeroFloat64,
		math.Inf(1), math.Inf(-1), 0.1, -0.1, 12345.6789,
	}
	encoder.WriteSlice(values)

	decoded := collectFloat64(NewValueGorillaDecoder(), encoder.Bytes(), len(values))
	requireSameBits(t, values, decoded)
}

func TestValueGorillaEncoder_NaNBitPatterns(t *testing.T) {
	encoder := NewValueGorillaEncoder()
	defer encoder.Finish()

	// Distinct NaN payloads must survive the round trip bit for bit.
	quietNaN := math.Float64frombits(0x7FF8000000000001)
	payloadNaN := math.Float64frombits(0x7FF80000DEADBEEF)
	values := []float64{1.5, quietNaN, 2.5, payloadNaN, math.NaN()}

	encoder.WriteSlice(values)

	decoded := collectFloat64(NewValueGorillaDecoder(), encoder.Bytes(), len(values))
	requireSameBits(t, values, decoded)
}

func TestValueGorillaEncoder_MultipleSequences(t *testing.T) {
	encoder := NewValueGorillaEncoder()
	defer encoder.Finish()

	first := []float64{1.0, 1.5, 2.0}
	second := []float64{-7.25, -7.25}

	encoder.WriteSlice(first)
	// Reset flushes to a byte boundary so each sequence decodes on its own.
	firstBytes := append([]byte(nil), encoder.Bytes()...)
	encoder.Reset()
	encoder.WriteSlice(second)
	all := encoder.Bytes()

	decodedFirst := collectFloat64(NewValueGorillaDecoder(), firstBytes, len(first))
	requireSameBits(t, first, decodedFirst)

	decodedSecond := collectFloat64(NewValueGorillaDecoder(), all[len(firstBytes):], len(second))
	requireSameBits(t, second, decodedSecond)
}

func TestValueGorillaDecoder_At(t *testing.T) {
	encoder := NewValueGorillaEncoder()
	defer encoder.Finish()

	values := []float64{5.0, 5.0, 6.25, -1.5, 6.25}
	encoder.WriteSlice(values)

	decoder := NewValueGorillaDecoder()
	for i, want := range values {
		got, ok := decoder.At(encoder.Bytes(), i, len(values))
		require.True(t, ok, "index %d", i)
		require.Equal(t, want, got)
	}

	_, ok := decoder.At(encoder.Bytes(), len(values), len(values))
	require.False(t, ok)
}

func TestValueGorillaDecoder_TruncatedData(t *testing.T) {
	encoder := NewValueGorillaEncoder()
	defer encoder.Finish()

	encoder.WriteSlice([]float64{1.0, 2.0, 3.0})
	data := encoder.Bytes()

	// Truncating the payload must stop the iterator early, not corrupt it.
	decoded := collectFloat64(NewValueGorillaDecoder(), data[:4], 3)
	require.Empty(t, decoded)
}
