package block

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/tachyon/errs"
	"github.com/arloliu/tachyon/labels"
)

func testLabels(host string) labels.Labels {
	return labels.FromStrings("__name__", "cpu_usage", "host", host)
}

func fillSeries(t *testing.T, b *Block, lset labels.Labels, base int64, n int) []Sample {
	t.Helper()

	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		s := Sample{Timestamp: base + int64(i)*1000, Value: 100.0 + 0.1*float64(i)}
		require.NoError(t, b.Append(lset, s))
		samples = append(samples, s)
	}

	return samples
}

func TestBlock_AppendAndRead(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	lset := testLabels("web-1")
	want := fillSeries(t, b, lset, 1000, 10)

	require.Equal(t, 1, b.NumSeries())
	require.Equal(t, 10, b.NumSamples())
	require.Equal(t, int64(1000), b.MinTime())
	require.Equal(t, int64(10000), b.MaxTime())

	got := b.Read(lset)
	require.Equal(t, want, got)
}

func TestBlock_ReadAbsentSeries(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	require.Nil(t, b.Read(testLabels("nope")))
}

func TestBlock_ReadIsOrderInsensitive(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	var written labels.Labels
	require.NoError(t, written.Set("host", "web-1"))
	require.NoError(t, written.Set("__name__", "cpu_usage"))
	require.NoError(t, b.Append(written, Sample{Timestamp: 1, Value: 1}))

	// Reading with the labels built in a different order must find the run.
	var lookup labels.Labels
	require.NoError(t, lookup.Set("__name__", "cpu_usage"))
	require.NoError(t, lookup.Set("host", "web-1"))

	require.Len(t, b.Read(lookup), 1)
}

func TestBlock_AppendSealedFails(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	lset := testLabels("web-1")
	fillSeries(t, b, lset, 1000, 5)
	require.NoError(t, b.Seal())
	require.True(t, b.Sealed())

	before, err := b.Serialize()
	require.NoError(t, err)

	err = b.Append(lset, Sample{Timestamp: 99999, Value: 1})
	require.ErrorIs(t, err, errs.ErrBlockSealed)

	// A failed append must not change the serialized bytes.
	after, err := b.Serialize()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestBlock_AppendOutOfRangeFails(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	lset := testLabels("web-1")
	require.NoError(t, b.Append(lset, Sample{Timestamp: 10000, Value: 1}))

	err = b.Append(lset, Sample{Timestamp: 9999, Value: 2})
	require.ErrorIs(t, err, errs.ErrOutOfOrderSample)
	require.Equal(t, 1, b.NumSamples())
}

func TestBlock_AppendWithinTolerance(t *testing.T) {
	b, err := New(1, WithOutOfOrderTolerance(5000))
	require.NoError(t, err)

	lset := testLabels("web-1")
	require.NoError(t, b.Append(lset, Sample{Timestamp: 10000, Value: 1}))
	require.NoError(t, b.Append(lset, Sample{Timestamp: 6000, Value: 2}))

	// The window tracks the block's current start time, now 6000.
	err = b.Append(lset, Sample{Timestamp: 999, Value: 3})
	require.ErrorIs(t, err, errs.ErrOutOfOrderSample)

	got := b.Read(lset)
	require.Equal(t, []Sample{{Timestamp: 6000, Value: 2}, {Timestamp: 10000, Value: 1}}, got)
	require.Equal(t, int64(6000), b.MinTime())
}

func TestBlock_DuplicateTimestampKeepsFirst(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	lset := testLabels("web-1")
	require.NoError(t, b.Append(lset, Sample{Timestamp: 1000, Value: 1}))
	require.NoError(t, b.Append(lset, Sample{Timestamp: 2000, Value: 2}))
	require.NoError(t, b.Append(lset, Sample{Timestamp: 2000, Value: 99}))

	got := b.Read(lset)
	require.Equal(t, []Sample{{Timestamp: 1000, Value: 1}, {Timestamp: 2000, Value: 2}}, got)
}

func TestBlock_SealIsIdempotent(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	fillSeries(t, b, testLabels("web-1"), 1000, 3)
	require.NoError(t, b.Seal())
	require.NoError(t, b.Seal())
}

func TestBlock_SerializeOpenFails(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	_, err = b.Serialize()
	require.ErrorIs(t, err, errs.ErrBlockNotSealed)
}

func TestBlock_SerializeRoundTrip(t *testing.T) {
	for name, codecs := range map[string]Codecs{
		"default":    DefaultCodecs(),
		"compressed": CompressedCodecs(),
	} {
		t.Run(name, func(t *testing.T) {
			b, err := New(7, WithCodecs(codecs))
			require.NoError(t, err)

			lset1 := testLabels("web-1")
			lset2 := testLabels("web-2")
			want1 := fillSeries(t, b, lset1, 1000, 50)
			want2 := fillSeries(t, b, lset2, 1500, 50)

			require.NoError(t, b.Seal())

			data, err := b.Serialize()
			require.NoError(t, err)

			restored, err := Deserialize(data)
			require.NoError(t, err)

			require.True(t, restored.Sealed())
			require.Equal(t, b.ID(), restored.ID())
			require.Equal(t, b.MinTime(), restored.MinTime())
			require.Equal(t, b.MaxTime(), restored.MaxTime())
			require.Equal(t, 2, restored.NumSeries())
			require.Equal(t, 100, restored.NumSamples())

			require.Equal(t, want1, restored.Read(lset1))
			require.Equal(t, want2, restored.Read(lset2))

			// Serialization is bit-for-bit stable across the round trip.
			again, err := restored.Serialize()
			require.NoError(t, err)
			require.Equal(t, data, again)
		})
	}
}

func TestBlock_SerializeRoundTripNaN(t *testing.T) {
	b, err := New(1, WithCodecs(CompressedCodecs()))
	require.NoError(t, err)

	lset := testLabels("web-1")
	payloadNaN := math.Float64frombits(0x7FF80000CAFEBABE)
	require.NoError(t, b.Append(lset, Sample{Timestamp: 1000, Value: payloadNaN}))
	require.NoError(t, b.Append(lset, Sample{Timestamp: 2000, Value: 1.0}))
	require.NoError(t, b.Seal())

	data, err := b.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)

	got := restored.Read(lset)
	require.Len(t, got, 2)
	require.Equal(t, uint64(0x7FF80000CAFEBABE), math.Float64bits(got[0].Value))
}

func TestBlock_DeserializeDetectsCorruption(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	fillSeries(t, b, testLabels("web-1"), 1000, 5)
	require.NoError(t, b.Seal())

	data, err := b.Serialize()
	require.NoError(t, err)

	// Flip one byte in the body; the CRC must catch it.
	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0xFF
	_, err = Deserialize(corrupted)
	require.ErrorIs(t, err, errs.ErrChecksumMismatch)

	// Breaking the magic number fails before the CRC check.
	corrupted = append([]byte(nil), data...)
	corrupted[0] ^= 0xFF
	_, err = Deserialize(corrupted)
	require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)

	_, err = Deserialize(data[:10])
	require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
}

func TestBlock_DeserializeEmptyBlock(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)
	require.NoError(t, b.Seal())

	data, err := b.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, 0, restored.NumSeries())
	require.Equal(t, 0, restored.NumSamples())
}

func TestSample_Equal(t *testing.T) {
	require.True(t, Sample{1, 2.0}.Equal(Sample{1, 2.0}))
	require.False(t, Sample{1, 2.0}.Equal(Sample{2, 2.0}))
	require.False(t, Sample{1, 2.0}.Equal(Sample{1, 2.5}))

	// Two NaNs are never equal.
	nan := math.NaN()
	require.False(t, Sample{1, nan}.Equal(Sample{1, nan}))
}
