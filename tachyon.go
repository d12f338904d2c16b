// Package tachyon provides a high-performance time-series storage engine for
// Prometheus/OpenTelemetry-style workloads: labeled float64 samples at high
// ingest rates, queried by label matchers over time ranges.
//
// # Core Features
//
//   - Order-independent series identity: label sets hash through their
//     canonical sorted form (64-bit xxHash64), so insertion order never
//     changes a series ID
//   - Columnar blocks with per-block codec selection (raw, delta-of-delta
//     timestamps, Gorilla values) and optional section compression
//   - Head/sealed block lifecycle with read-time merging and deduplication
//   - Inverted label index with Eq/NotEq/Regex/NotRegex matchers
//   - CRC32-checked, self-describing block serialization
//
// # Basic Usage
//
//	engine, _ := tachyon.NewEngine()
//	defer engine.Close(context.Background())
//
//	lset := labels.FromStrings("__name__", "cpu_usage", "host", "web-1")
//	_ = engine.Write(ctx, lset, []block.Sample{{Timestamp: ts, Value: 0.42}})
//
//	samples, _ := engine.Read(ctx, lset, 0, math.MaxInt64)
//
// This package provides convenient top-level wrappers around the storage
// package. For fine-grained control, use the storage, block, and query
// packages directly.
package tachyon

import (
	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/internal/hash"
	"github.com/arloliu/tachyon/labels"
	"github.com/arloliu/tachyon/storage"
)

// NewEngine creates a storage engine with the given options.
//
// The default configuration uses pass-through codecs, a 120-sample seal
// threshold, zero out-of-order tolerance, and no persistence sink.
func NewEngine(opts ...storage.Option) (*storage.Engine, error) {
	return storage.NewEngine(opts...)
}

// NewCompressedEngine creates a storage engine using the recommended
// production codec set: delta-of-delta timestamps, Gorilla values, and a
// zstd-compressed label dictionary.
func NewCompressedEngine(opts ...storage.Option) (*storage.Engine, error) {
	allOpts := append([]storage.Option{storage.WithBlockCodecs(block.CompressedCodecs())}, opts...)
	return storage.NewEngine(allOpts...)
}

// SeriesID returns the 64-bit identifier of a label set: the xxHash64 of its
// canonical sorted string form.
//
// The hash is deterministic across process runs and insensitive to label
// insertion order, so the same logical series always maps to the same ID.
func SeriesID(lset labels.Labels) uint64 {
	return hash.ID((&lset).Canonical())
}
