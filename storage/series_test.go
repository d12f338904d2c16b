package storage

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/format"
	"github.com/arloliu/tachyon/labels"
)

func newTestSeries(t *testing.T, sealThreshold int) *Series {
	t.Helper()

	var blockID atomic.Uint64
	lset := labels.FromStrings("__name__", "cpu_usage", "host", "web-1")

	return newSeries(lset, format.MetricGauge, Granularity{}, seriesConfig{
		sealThreshold: sealThreshold,
		codecs:        block.DefaultCodecs(),
		nextBlockID:   func() uint64 { return blockID.Add(1) },
	})
}

func appendSamples(t *testing.T, s *Series, base int64, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		_, err := s.Append(block.Sample{Timestamp: base + int64(i), Value: float64(i)})
		require.NoError(t, err)
	}
}

func TestSeries_AppendCreatesHeadOnDemand(t *testing.T) {
	s := newTestSeries(t, 120)

	full, err := s.Append(block.Sample{Timestamp: 5000, Value: 1})
	require.NoError(t, err)
	require.False(t, full)

	require.Equal(t, int64(5000), s.MinTimestamp())
	require.Equal(t, int64(5000), s.MaxTimestamp())
	require.Equal(t, 1, s.NumSamples())
}

func TestSeries_ReportsFullAtSealThreshold(t *testing.T) {
	s := newTestSeries(t, 10)

	for i := 0; i < 9; i++ {
		full, err := s.Append(block.Sample{Timestamp: int64(i), Value: 0})
		require.NoError(t, err)
		require.False(t, full, "sample %d", i)
	}

	full, err := s.Append(block.Sample{Timestamp: 9, Value: 0})
	require.NoError(t, err)
	require.True(t, full)
}

func TestSeries_SealHead(t *testing.T) {
	s := newTestSeries(t, 120)
	appendSamples(t, s, 1000, 10)

	sealed, err := s.SealHead()
	require.NoError(t, err)
	require.NotNil(t, sealed)
	require.True(t, sealed.Sealed())
	require.Equal(t, 10, sealed.NumSamples())

	// No head anymore; sealing again is a no-op.
	sealed, err = s.SealHead()
	require.NoError(t, err)
	require.Nil(t, sealed)

	// A new head starts on the next append.
	appendSamples(t, s, 2000, 1)
	require.Equal(t, 11, s.NumSamples())
}

func TestSeries_ReadSeesUnsealedHead(t *testing.T) {
	// Samples must be visible before any seal happens.
	s := newTestSeries(t, 120)
	appendSamples(t, s, 1000, 10)

	got, err := s.Read(context.Background(), 1000, 1009)
	require.NoError(t, err)
	require.Len(t, got, 10)
}

func TestSeries_ReadMergesSealedAndHead(t *testing.T) {
	s := newTestSeries(t, 120)

	appendSamples(t, s, 1000, 5)
	_, err := s.SealHead()
	require.NoError(t, err)

	appendSamples(t, s, 2000, 5)

	got, err := s.Read(context.Background(), 0, math.MaxInt64)
	require.NoError(t, err)
	require.Len(t, got, 10)

	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].Timestamp, got[i].Timestamp)
	}
}

func TestSeries_ReadDeduplicatesReplayedSamples(t *testing.T) {
	s := newTestSeries(t, 120)

	// First write, then a simulated WAL replay overlapping it.
	for _, sample := range []block.Sample{{Timestamp: 1, Value: 1.0}, {Timestamp: 2, Value: 2.0}} {
		_, err := s.Append(sample)
		require.NoError(t, err)
	}
	_, err := s.SealHead()
	require.NoError(t, err)

	for _, sample := range []block.Sample{{Timestamp: 2, Value: 2.0}, {Timestamp: 3, Value: 3.0}} {
		_, err := s.Append(sample)
		require.NoError(t, err)
	}

	got, err := s.Read(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Equal(t, []block.Sample{
		{Timestamp: 1, Value: 1.0},
		{Timestamp: 2, Value: 2.0},
		{Timestamp: 3, Value: 3.0},
	}, got)
}

func TestSeries_ReadFiltersByRange(t *testing.T) {
	s := newTestSeries(t, 120)
	appendSamples(t, s, 1000, 100)

	got, err := s.Read(context.Background(), 1010, 1019)
	require.NoError(t, err)
	require.Len(t, got, 10)
	require.Equal(t, int64(1010), got[0].Timestamp)
	require.Equal(t, int64(1019), got[len(got)-1].Timestamp)
}

func TestSeries_ReadEmptyRange(t *testing.T) {
	s := newTestSeries(t, 120)
	appendSamples(t, s, 1000, 10)

	got, err := s.Read(context.Background(), 5000, 6000)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSeries_ReadHonorsDeadline(t *testing.T) {
	s := newTestSeries(t, 120)
	appendSamples(t, s, 1000, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Read(ctx, 0, math.MaxInt64)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSeries_GranularityDrivenSeal(t *testing.T) {
	var blockID atomic.Uint64
	lset := labels.FromStrings("__name__", "slow_metric")

	s := newSeries(lset, format.MetricGauge, Granularity{IntervalMs: 10}, seriesConfig{
		sealThreshold: 1000,
		codecs:        block.DefaultCodecs(),
		nextBlockID:   func() uint64 { return blockID.Add(1) },
	})

	// Far fewer samples than the count threshold, but the covered span
	// exceeds interval*threshold.
	_, err := s.Append(block.Sample{Timestamp: 0, Value: 0})
	require.NoError(t, err)

	full, err := s.Append(block.Sample{Timestamp: 20000, Value: 1})
	require.NoError(t, err)
	require.True(t, full)
}

func TestSeries_DropBefore(t *testing.T) {
	s := newTestSeries(t, 120)

	appendSamples(t, s, 1000, 5)
	_, err := s.SealHead()
	require.NoError(t, err)

	appendSamples(t, s, 2000, 5)
	_, err = s.SealHead()
	require.NoError(t, err)

	require.Equal(t, 1, s.dropBefore(1500))

	got, err := s.Read(context.Background(), 0, math.MaxInt64)
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Equal(t, int64(2000), got[0].Timestamp)
}

func TestSeries_ReplaceBlock(t *testing.T) {
	s := newTestSeries(t, 120)

	appendSamples(t, s, 1000, 5)
	old, err := s.SealHead()
	require.NoError(t, err)

	replacement, err := block.New(99)
	require.NoError(t, err)
	require.NoError(t, replacement.Append(s.Labels(), block.Sample{Timestamp: 1000, Value: 42}))
	require.NoError(t, replacement.Seal())

	require.True(t, s.replaceBlock(old, replacement))
	require.False(t, s.replaceBlock(old, replacement))

	got, err := s.Read(context.Background(), 0, math.MaxInt64)
	require.NoError(t, err)
	require.Equal(t, []block.Sample{{Timestamp: 1000, Value: 42}}, got)
}
