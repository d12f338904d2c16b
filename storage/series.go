package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/format"
	"github.com/arloliu/tachyon/labels"
)

// seriesConfig carries the engine-level knobs a series needs to manage its
// blocks.
type seriesConfig struct {
	sealThreshold int
	tolerance     int64
	codecs        block.Codecs
	nextBlockID   func() uint64
}

// Series is a registry entry binding one label set to its chain of blocks: at
// most one open head plus an append-only list of sealed blocks ordered by
// start time.
//
// Appends and head sealing take the exclusive lock; reads take the shared
// lock. Sealed blocks are immutable and need no lock once published.
type Series struct {
	mu sync.RWMutex

	id         uint64
	lset       labels.Labels
	metricType format.MetricType
	gran       Granularity
	cfg        seriesConfig

	head   *block.Block
	sealed []*block.Block
}

func newSeries(lset labels.Labels, metricType format.MetricType, gran Granularity, cfg seriesConfig) *Series {
	return &Series{
		id:         (&lset).ID(),
		lset:       lset.Clone(),
		metricType: metricType,
		gran:       gran,
		cfg:        cfg,
	}
}

// ID returns the series identifier derived from the canonical label string.
func (s *Series) ID() uint64 {
	return s.id
}

// Labels returns the series' label set.
func (s *Series) Labels() labels.Labels {
	return s.lset
}

// Type returns the advisory metric type recorded at series creation.
func (s *Series) Type() format.MetricType {
	return s.metricType
}

// Granularity returns the advisory granularity hint.
func (s *Series) Granularity() Granularity {
	return s.gran
}

// Append adds one sample to the head block, creating the head on demand with
// its start and end time set to the sample's timestamp.
//
// The boolean result reports whether the head has met the seal policy and
// should be sealed by the caller.
func (s *Series) Append(sample block.Sample) (full bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == nil {
		head, err := block.New(s.cfg.nextBlockID(),
			block.WithCodecs(s.cfg.codecs),
			block.WithOutOfOrderTolerance(s.cfg.tolerance),
		)
		if err != nil {
			return false, err
		}
		s.head = head
	}

	if err := s.head.Append(s.lset, sample); err != nil {
		return false, err
	}

	return s.headFullLocked(), nil
}

// headFullLocked evaluates the seal policy: sample count against the
// threshold, and covered time span against the granularity interval when one
// is configured.
func (s *Series) headFullLocked() bool {
	if s.head == nil {
		return false
	}
	if s.head.NumSamples() >= s.cfg.sealThreshold {
		return true
	}
	if s.gran.IntervalMs > 0 {
		span := s.head.MaxTime() - s.head.MinTime()
		return span >= s.gran.IntervalMs*int64(s.cfg.sealThreshold)
	}

	return false
}

// SealHead seals the current head, pushes it onto the sealed list, and clears
// the head slot. It returns the sealed block so the engine can hand it to the
// persistence sink, or nil when there is no head.
func (s *Series) SealHead() (*block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == nil {
		return nil, nil
	}

	if err := s.head.Seal(); err != nil {
		return nil, err
	}

	blk := s.head
	s.head = nil
	s.insertSealedLocked(blk)

	return blk, nil
}

// insertSealedLocked keeps the sealed list ordered by start time ascending.
func (s *Series) insertSealedLocked(blk *block.Block) {
	idx := sort.Search(len(s.sealed), func(i int) bool {
		return s.sealed[i].MinTime() > blk.MinTime()
	})
	s.sealed = append(s.sealed, nil)
	copy(s.sealed[idx+1:], s.sealed[idx:])
	s.sealed[idx] = blk
}

// Read returns the series' samples within [start, end], merged across sealed
// blocks and the head, sorted ascending by timestamp and deduplicated by
// timestamp keeping the first occurrence.
//
// Sealed blocks are pruned by their header time range. The head is always
// scanned regardless of its header bounds, and its samples are filtered one
// by one. Deduplication matters because WAL replay can reintroduce ranges
// that already live in sealed blocks.
func (s *Series) Read(ctx context.Context, start, end int64) ([]block.Sample, error) {
	if err := contextErr(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []block.Sample

	for _, blk := range s.sealed {
		if blk.MaxTime() < start || blk.MinTime() > end {
			continue
		}
		if err := contextErr(ctx); err != nil {
			return nil, err
		}
		for _, sample := range blk.Read(s.lset) {
			if sample.Timestamp >= start && sample.Timestamp <= end {
				result = append(result, sample)
			}
		}
	}

	if s.head != nil {
		for _, sample := range s.head.Read(s.lset) {
			if sample.Timestamp >= start && sample.Timestamp <= end {
				result = append(result, sample)
			}
		}
	}

	if err := contextErr(ctx); err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	// Deduplicate by timestamp, first occurrence wins.
	deduped := result[:0]
	for i, sample := range result {
		if i > 0 && sample.Timestamp == deduped[len(deduped)-1].Timestamp {
			continue
		}
		deduped = append(deduped, sample)
	}

	return deduped, nil
}

// replaceBlock atomically swaps old for new in the sealed list, re-sorting by
// start time. It reports whether old was found. Used by compaction.
func (s *Series) replaceBlock(old, newBlk *block.Block) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, blk := range s.sealed {
		if blk == old {
			s.sealed[i] = newBlk
			sort.SliceStable(s.sealed, func(a, b int) bool {
				return s.sealed[a].MinTime() < s.sealed[b].MinTime()
			})

			return true
		}
	}

	return false
}

// removeBlock deletes old from the sealed list, reporting whether it was
// found.
func (s *Series) removeBlock(old *block.Block) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, blk := range s.sealed {
		if blk == old {
			s.sealed = append(s.sealed[:i], s.sealed[i+1:]...)
			return true
		}
	}

	return false
}

// sealedBlocks returns a snapshot of the sealed list.
func (s *Series) sealedBlocks() []*block.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*block.Block, len(s.sealed))
	copy(out, s.sealed)

	return out
}

// dropBefore removes sealed blocks that end strictly before ts, returning how
// many were dropped. The head is never dropped.
func (s *Series) dropBefore(ts int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.sealed[:0]
	dropped := 0
	for _, blk := range s.sealed {
		if blk.MaxTime() < ts {
			dropped++
			continue
		}
		kept = append(kept, blk)
	}
	s.sealed = kept

	return dropped
}

// MinTimestamp returns the smallest timestamp held by the series, or 0 when
// empty.
func (s *Series) MinTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	min, found := int64(0), false
	if len(s.sealed) > 0 {
		min, found = s.sealed[0].MinTime(), true
	}
	if s.head != nil && s.head.NumSamples() > 0 && (!found || s.head.MinTime() < min) {
		min = s.head.MinTime()
	}

	return min
}

// MaxTimestamp returns the largest timestamp held by the series, or 0 when
// empty.
func (s *Series) MaxTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := int64(0)
	for _, blk := range s.sealed {
		if blk.MaxTime() > max {
			max = blk.MaxTime()
		}
	}
	if s.head != nil && s.head.NumSamples() > 0 && s.head.MaxTime() > max {
		max = s.head.MaxTime()
	}

	return max
}

// NumSamples returns the total number of samples across the head and all
// sealed blocks. Overlapping blocks may count duplicates; the figure is a
// storage-side statistic, not a query-side one.
func (s *Series) NumSamples() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, blk := range s.sealed {
		total += blk.NumSamples()
	}
	if s.head != nil {
		total += s.head.NumSamples()
	}

	return total
}
