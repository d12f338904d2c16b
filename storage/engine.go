// Package storage implements the tachyon storage core: the series registry,
// the inverted label index, and the engine façade binding them to the block
// lifecycle.
//
// The engine is safe for concurrent use. Locks are always acquired in the
// order engine → index → series, and persistence sinks are invoked outside
// every lock, after a block has been sealed and detached from its series.
package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/errs"
	"github.com/arloliu/tachyon/format"
	"github.com/arloliu/tachyon/internal/options"
	"github.com/arloliu/tachyon/labels"
)

// DefaultSealThreshold is the head seal sample count, following the Gorilla
// convention of 120 samples per compressed chunk.
const DefaultSealThreshold = 120

// DefaultCompactThreshold is the largest combined sample count at which two
// adjacent sealed blocks are merged by Compact.
const DefaultCompactThreshold = 4 * DefaultSealThreshold

// Option configures an Engine at construction time.
type Option = options.Option[*Engine]

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return options.NoError(func(e *Engine) {
		e.logger = logger
	})
}

// WithSealThreshold overrides the head seal sample count.
func WithSealThreshold(n int) Option {
	return options.New(func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("seal threshold must be positive, got %d", n)
		}
		e.sealThreshold = n

		return nil
	})
}

// WithOutOfOrderTolerance accepts appends up to toleranceMs older than the
// head block's start time. The default is zero: strictly forward-moving
// heads.
func WithOutOfOrderTolerance(toleranceMs int64) Option {
	return options.NoError(func(e *Engine) {
		e.tolerance = toleranceMs
	})
}

// WithBlockCodecs selects the codec set for newly created head blocks.
func WithBlockCodecs(codecs block.Codecs) Option {
	return options.NoError(func(e *Engine) {
		e.codecs = codecs
	})
}

// WithSink sets the persistence sink receiving sealed blocks.
func WithSink(sink BlockSink) Option {
	return options.NoError(func(e *Engine) {
		e.sink = sink
	})
}

// WithRegistry registers the engine's self-metrics on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return options.NoError(func(e *Engine) {
		e.registry = reg
	})
}

// WithDefaultGranularity sets the granularity hint attached to new series.
func WithDefaultGranularity(gran Granularity) Option {
	return options.NoError(func(e *Engine) {
		e.defaultGran = gran
	})
}

// WithCompactThreshold overrides the largest combined sample count at which
// adjacent sealed blocks are merged.
func WithCompactThreshold(n int) Option {
	return options.NoError(func(e *Engine) {
		e.compactThreshold = n
	})
}

// SeriesRef pairs a series ID with its label set in match results.
type SeriesRef struct {
	ID     uint64
	Labels labels.Labels
}

// Engine is the top-level storage façade: it routes writes to series, merges
// reads across blocks, and drives the flush/compact/close lifecycle.
//
// All state is bounded by the engine handle; there are no package-level
// singletons. Create one with NewEngine and release it with Close.
type Engine struct {
	mu     sync.RWMutex
	series map[uint64]*Series

	index  *Index
	logger log.Logger
	sink   BlockSink

	sealThreshold    int
	tolerance        int64
	codecs           block.Codecs
	compactThreshold int
	defaultGran      Granularity
	registry         prometheus.Registerer

	blockID atomic.Uint64
	metrics *engineMetrics
	closed  atomic.Bool
}

// NewEngine creates a storage engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		series:           make(map[uint64]*Series),
		index:            NewIndex(),
		logger:           log.NewNopLogger(),
		sink:             NopSink{},
		sealThreshold:    DefaultSealThreshold,
		codecs:           block.DefaultCodecs(),
		compactThreshold: DefaultCompactThreshold,
	}

	if err := options.Apply(e, opts...); err != nil {
		return nil, err
	}

	e.metrics = newEngineMetrics(e.registry)

	return e, nil
}

// nextBlockID allocates a block identifier unique within this engine.
func (e *Engine) nextBlockID() uint64 {
	return e.blockID.Add(1)
}

// Write appends samples to the series identified by lset, creating the series
// on first write. When the head block fills, it is sealed synchronously and
// handed to the persistence sink after all locks are released.
//
// Failures are all-or-nothing per sample: a rejected sample leaves no trace,
// but samples appended before the failure stay applied.
func (e *Engine) Write(ctx context.Context, lset labels.Labels, samples []block.Sample) error {
	return e.WriteTyped(ctx, lset, format.MetricGauge, samples)
}

// WriteTyped is Write with an explicit metric type used when the series is
// created. The type of an existing series never changes.
func (e *Engine) WriteTyped(ctx context.Context, lset labels.Labels, metricType format.MetricType, samples []block.Sample) error {
	if err := contextErr(ctx); err != nil {
		return err
	}
	if e.closed.Load() {
		return errs.ErrEngineClosed
	}

	series, err := e.getOrCreate(lset, metricType)
	if err != nil {
		return err
	}

	var full []*block.Block
	for _, sample := range samples {
		isFull, err := series.Append(sample)
		if err != nil {
			return err
		}
		e.metrics.samplesAppended.Inc()

		if isFull {
			sealed, err := series.SealHead()
			if err != nil {
				return err
			}
			if sealed != nil {
				e.metrics.blocksSealed.Inc()
				full = append(full, sealed)
			}
		}
	}

	// Sink calls happen outside every lock; sealed blocks are already
	// immutable and detached.
	for _, blk := range full {
		e.persist(ctx, blk)
	}

	return nil
}

// getOrCreate resolves the series for lset, creating it (and updating the
// label index) under the exclusive engine lock on first write.
func (e *Engine) getOrCreate(lset labels.Labels, metricType format.MetricType) (*Series, error) {
	id := (&lset).ID()

	e.mu.RLock()
	series, ok := e.series[id]
	e.mu.RUnlock()
	if ok {
		if !series.Labels().Equal(lset) {
			return nil, fmt.Errorf("%w: %s vs %s", errs.ErrHashCollision, series.Labels(), lset)
		}

		return series, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if series, ok := e.series[id]; ok {
		if !series.Labels().Equal(lset) {
			return nil, fmt.Errorf("%w: %s vs %s", errs.ErrHashCollision, series.Labels(), lset)
		}

		return series, nil
	}

	series = newSeries(lset, metricType, e.defaultGran, seriesConfig{
		sealThreshold: e.sealThreshold,
		tolerance:     e.tolerance,
		codecs:        e.codecs,
		nextBlockID:   e.nextBlockID,
	})
	e.series[id] = series
	e.index.Insert(id, series.Labels())
	e.metrics.activeSeries.Set(float64(len(e.series)))

	return series, nil
}

// lookup returns the series for lset, or nil when it does not exist.
func (e *Engine) lookup(lset labels.Labels) *Series {
	id := (&lset).ID()

	e.mu.RLock()
	defer e.mu.RUnlock()

	series, ok := e.series[id]
	if !ok || !series.Labels().Equal(lset) {
		return nil
	}

	return series
}

// Read returns the samples of the series identified by lset within
// [startMs, endMs], sorted and deduplicated. A series that does not exist
// yields an empty result, not an error.
func (e *Engine) Read(ctx context.Context, lset labels.Labels, startMs, endMs int64) ([]block.Sample, error) {
	if err := contextErr(ctx); err != nil {
		return nil, err
	}
	if e.closed.Load() {
		return nil, errs.ErrEngineClosed
	}

	defer func(begin time.Time) {
		e.metrics.readDuration.Observe(time.Since(begin).Seconds())
	}(time.Now())

	series := e.lookup(lset)
	if series == nil {
		return []block.Sample{}, nil
	}

	return series.Read(ctx, startMs, endMs)
}

// LabelNames returns all label names, sorted.
func (e *Engine) LabelNames() []string {
	return e.index.LabelNames()
}

// LabelValues returns all values of the given label name, sorted. Unknown
// names yield an empty slice.
func (e *Engine) LabelValues(name string) []string {
	return e.index.LabelValues(name)
}

// MatchSeries resolves matchers to the identified series, sorted by ID.
func (e *Engine) MatchSeries(matchers ...*labels.Matcher) []SeriesRef {
	ids := e.index.Match(matchers...)

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]SeriesRef, 0, len(ids))
	for _, id := range ids {
		series, ok := e.series[id]
		if !ok {
			continue
		}
		out = append(out, SeriesRef{ID: id, Labels: series.Labels()})
	}

	return out
}

// SeriesByID returns the series with the given ID, or nil.
func (e *Engine) SeriesByID(id uint64) *Series {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.series[id]
}

// Flush seals every series' head block and hands each sealed block to the
// persistence sink.
func (e *Engine) Flush(ctx context.Context) error {
	if err := contextErr(ctx); err != nil {
		return err
	}
	if e.closed.Load() {
		return errs.ErrEngineClosed
	}

	return e.flushClosed(ctx)
}

// Compact merges adjacent sealed blocks per series while their combined
// sample count does not exceed the compaction threshold. Merged blocks replace
// their sources atomically and are handed to the sink.
func (e *Engine) Compact(ctx context.Context) error {
	if err := contextErr(ctx); err != nil {
		return err
	}

	for _, series := range e.snapshot() {
		if err := contextErr(ctx); err != nil {
			return err
		}
		if err := e.compactSeries(ctx, series); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) compactSeries(ctx context.Context, series *Series) error {
	for {
		blocks := series.sealedBlocks()

		merged := false
		for i := 0; i+1 < len(blocks); i++ {
			a, b := blocks[i], blocks[i+1]
			if a.NumSamples()+b.NumSamples() > e.compactThreshold {
				continue
			}

			blk, err := e.mergeBlocks(a, b)
			if err != nil {
				return err
			}

			// Swap the pair for the merged block atomically from the
			// reader's point of view: replace the first, drop the second.
			if !series.replaceBlock(a, blk) {
				return fmt.Errorf("%w: compaction lost block %d", errs.ErrInternal, a.ID())
			}
			series.removeBlock(b)

			level.Debug(e.logger).Log(
				"msg", "compacted blocks",
				"series", series.Labels().String(),
				"from", a.ID(), "and", b.ID(), "into", blk.ID(),
			)
			e.persist(ctx, blk)
			merged = true

			break
		}

		if !merged {
			return nil
		}
	}
}

// mergeBlocks builds one sealed block holding both sources' samples.
func (e *Engine) mergeBlocks(a, b *block.Block) (*block.Block, error) {
	// Sources are merged in start-time order, so the merged block's start
	// only ever moves down to a's minimum and the ordering guard never
	// fires.
	merged, err := block.New(e.nextBlockID(), block.WithCodecs(e.codecs))
	if err != nil {
		return nil, err
	}

	for _, src := range []*block.Block{a, b} {
		for _, srcLset := range src.Labels() {
			for _, sample := range src.Read(srcLset) {
				if err := merged.Append(srcLset, sample); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := merged.Seal(); err != nil {
		return nil, err
	}

	return merged, nil
}

// DropBefore removes sealed blocks whose end time is strictly before ts. It
// is the primitive retention enforcement builds on; the policy itself lives
// with the caller.
func (e *Engine) DropBefore(ts int64) int {
	dropped := 0
	for _, series := range e.snapshot() {
		dropped += series.dropBefore(ts)
	}

	return dropped
}

// Close flushes all heads and marks the engine closed. Subsequent writes and
// reads fail with ErrEngineClosed.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}

	if err := e.flushClosed(ctx); err != nil {
		return err
	}

	level.Info(e.logger).Log("msg", "engine closed", "series", e.NumSeries())

	return nil
}

// flushClosed is Flush without the closed check, used by Close after the flag
// flips.
func (e *Engine) flushClosed(ctx context.Context) error {
	for _, series := range e.snapshot() {
		sealed, err := series.SealHead()
		if err != nil {
			return err
		}
		if sealed != nil {
			e.metrics.blocksSealed.Inc()
			e.persist(ctx, sealed)
		}
	}

	return nil
}

// NumSeries returns the number of registered series.
func (e *Engine) NumSeries() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.series)
}

// snapshot returns the current series list without holding the engine lock
// during the caller's iteration.
func (e *Engine) snapshot() []*Series {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Series, 0, len(e.series))
	for _, series := range e.series {
		out = append(out, series)
	}

	return out
}

// persist hands a sealed block to the sink, logging failures instead of
// propagating them: the block stays readable in memory either way.
func (e *Engine) persist(ctx context.Context, blk *block.Block) {
	if err := e.sink.Persist(ctx, blk); err != nil {
		level.Warn(e.logger).Log("msg", "persist sealed block", "block", blk.ID(), "err", err)
		return
	}
	e.metrics.blocksPersisted.Inc()
}

// contextErr reports a deadline or cancellation without blocking.
func contextErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
