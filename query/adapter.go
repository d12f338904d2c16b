// Package query translates label matchers and time parameters into storage
// reads and assembles Prometheus-shaped results.
//
// The adapter evaluates selectors only; PromQL expression evaluation is a
// separate collaborator consuming the same storage API.
package query

import (
	"context"

	"github.com/go-kit/log"

	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/internal/options"
	"github.com/arloliu/tachyon/labels"
	"github.com/arloliu/tachyon/storage"
)

// DefaultLookbackMs is the instant-vector lookback window: a step point takes
// the most recent sample at or before it, as long as the sample is no older
// than this.
const DefaultLookbackMs = 5 * 60 * 1000

// DefaultStepMs is the range-query resolution used when the caller supplies
// none.
const DefaultStepMs = 1000

// SeriesResult is one series' contribution to a range query result.
type SeriesResult struct {
	Labels  labels.Labels
	Samples []block.Sample
}

// Matrix is the result of a range query: one sampled series per selector
// match.
type Matrix []SeriesResult

// Point is one series' latest sample in an instant query result.
type Point struct {
	Labels labels.Labels
	Sample block.Sample
}

// Vector is the result of an instant query.
type Vector []Point

// Option configures an Adapter.
type Option = options.Option[*Adapter]

// WithLookback overrides the lookback window.
func WithLookback(lookbackMs int64) Option {
	return options.NoError(func(a *Adapter) {
		a.lookback = lookbackMs
	})
}

// WithLogger sets the adapter logger.
func WithLogger(logger log.Logger) Option {
	return options.NoError(func(a *Adapter) {
		a.logger = logger
	})
}

// Adapter binds the storage engine to the query endpoints.
type Adapter struct {
	engine   *storage.Engine
	lookback int64
	logger   log.Logger
}

// NewAdapter creates a query adapter over the given engine.
func NewAdapter(engine *storage.Engine, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		engine:   engine,
		lookback: DefaultLookbackMs,
		logger:   log.NewNopLogger(),
	}

	if err := options.Apply(a, opts...); err != nil {
		return nil, err
	}

	return a, nil
}

// RangeQuery evaluates the matchers over [startMs, endMs], sampling each
// matched series at startMs, startMs+stepMs, … ≤ endMs. Each step point takes
// the most recent sample at or before it within the lookback window. Series
// with no point in the whole range are omitted.
//
// Failures propagate without partial results.
func (a *Adapter) RangeQuery(ctx context.Context, matchers []*labels.Matcher, startMs, endMs, stepMs int64) (Matrix, error) {
	if stepMs <= 0 {
		stepMs = DefaultStepMs
	}
	if endMs < startMs {
		endMs = startMs
	}

	refs := a.engine.MatchSeries(matchers...)

	matrix := make(Matrix, 0, len(refs))
	for _, ref := range refs {
		raw, err := a.engine.Read(ctx, ref.Labels, startMs-a.lookback, endMs)
		if err != nil {
			return nil, err
		}

		sampled := sampleAtSteps(raw, startMs, endMs, stepMs, a.lookback)
		if len(sampled) == 0 {
			continue
		}

		matrix = append(matrix, SeriesResult{Labels: ref.Labels, Samples: sampled})
	}

	return matrix, nil
}

// InstantQuery evaluates the matchers at tsMs, yielding the latest sample at
// or before tsMs within the lookback window for each matched series.
func (a *Adapter) InstantQuery(ctx context.Context, matchers []*labels.Matcher, tsMs int64) (Vector, error) {
	refs := a.engine.MatchSeries(matchers...)

	vector := make(Vector, 0, len(refs))
	for _, ref := range refs {
		raw, err := a.engine.Read(ctx, ref.Labels, tsMs-a.lookback, tsMs)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			continue
		}

		latest := raw[len(raw)-1]
		vector = append(vector, Point{
			Labels: ref.Labels,
			Sample: block.Sample{Timestamp: tsMs, Value: latest.Value},
		})
	}

	return vector, nil
}

// Series returns the label sets matching the selectors.
func (a *Adapter) Series(matchers []*labels.Matcher) []labels.Labels {
	refs := a.engine.MatchSeries(matchers...)

	out := make([]labels.Labels, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.Labels)
	}

	return out
}

// LabelNames returns all label names, sorted.
func (a *Adapter) LabelNames() []string {
	return a.engine.LabelNames()
}

// LabelValues returns all values of the given label name, sorted.
func (a *Adapter) LabelValues(name string) []string {
	return a.engine.LabelValues(name)
}

// sampleAtSteps walks the sorted raw samples once, emitting for each step the
// most recent sample at or before it within the lookback window.
func sampleAtSteps(raw []block.Sample, startMs, endMs, stepMs, lookbackMs int64) []block.Sample {
	var out []block.Sample

	idx := 0
	for ts := startMs; ts <= endMs; ts += stepMs {
		for idx < len(raw) && raw[idx].Timestamp <= ts {
			idx++
		}
		if idx == 0 {
			continue
		}

		candidate := raw[idx-1]
		if ts-candidate.Timestamp > lookbackMs {
			continue
		}

		out = append(out, block.Sample{Timestamp: ts, Value: candidate.Value})
	}

	return out
}
