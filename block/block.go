// Package block implements the columnar container holding one or more series'
// samples within a bounded time window.
//
// A block starts open, accepts appends, and is sealed exactly once. Open
// blocks are exclusively owned by their series and carry no internal locking;
// sealed blocks are immutable and may be shared by any number of readers
// without synchronization. Codec selection happens at block creation and is
// recorded in the header flags so a block is always self-describing.
package block

import (
	"sort"

	"github.com/arloliu/tachyon/errs"
	"github.com/arloliu/tachyon/format"
	"github.com/arloliu/tachyon/internal/options"
	"github.com/arloliu/tachyon/labels"
	"github.com/arloliu/tachyon/section"
)

// Codecs is the capability set a block uses for its three streams. It is
// fixed at block creation.
type Codecs struct {
	// Timestamp selects the timestamp stream encoding (TypeRaw or TypeDelta).
	Timestamp format.EncodingType
	// Value selects the value stream encoding (TypeRaw or TypeGorilla).
	Value format.EncodingType
	// DictCompression selects the label dictionary compression.
	DictCompression format.CompressionType
}

// DefaultCodecs returns the pass-through codec set: raw timestamps, raw
// values, uncompressed dictionary.
func DefaultCodecs() Codecs {
	return Codecs{
		Timestamp:       format.TypeRaw,
		Value:           format.TypeRaw,
		DictCompression: format.CompressionNone,
	}
}

// CompressedCodecs returns the recommended production codec set:
// delta-of-delta timestamps, Gorilla values, zstd-compressed dictionary.
func CompressedCodecs() Codecs {
	return Codecs{
		Timestamp:       format.TypeDelta,
		Value:           format.TypeGorilla,
		DictCompression: format.CompressionZstd,
	}
}

func (c Codecs) validate() error {
	flags := section.NewFlags(c.Timestamp, c.Value, c.DictCompression)
	return flags.Validate()
}

// Option configures a Block at construction time.
type Option = options.Option[*Block]

// WithCodecs selects the codec set used when the block is sealed and
// serialized.
func WithCodecs(codecs Codecs) Option {
	return options.New(func(b *Block) error {
		if err := codecs.validate(); err != nil {
			return err
		}
		b.codecs = codecs
		b.header.Flags = section.NewFlags(codecs.Timestamp, codecs.Value, codecs.DictCompression)

		return nil
	})
}

// WithOutOfOrderTolerance accepts appends up to toleranceMs older than the
// block's start time. The default tolerance is zero.
func WithOutOfOrderTolerance(toleranceMs int64) Option {
	return options.NoError(func(b *Block) {
		b.tolerance = toleranceMs
	})
}

// seriesSamples is one series' sample run inside the block, kept sorted by
// timestamp with strictly increasing timestamps.
type seriesSamples struct {
	lset    labels.Labels
	samples []Sample
}

// Block is a columnar container for samples belonging to one or more series.
type Block struct {
	header     section.Header
	codecs     Codecs
	tolerance  int64
	series     map[uint64]*seriesSamples
	order      []uint64 // dense label-ID assignment in first-append order
	numSamples int
	sealed     bool
	body       []byte // serialized body, built at Seal
}

// New creates an open block with the given ID.
func New(id uint64, opts ...Option) (*Block, error) {
	b := &Block{
		codecs: DefaultCodecs(),
		series: make(map[uint64]*seriesSamples),
	}
	b.header.ID = id
	b.header.Flags = section.NewFlags(b.codecs.Timestamp, b.codecs.Value, b.codecs.DictCompression)

	if err := options.Apply(b, opts...); err != nil {
		return nil, err
	}

	return b, nil
}

// ID returns the block's unique identifier.
func (b *Block) ID() uint64 {
	return b.header.ID
}

// Sealed reports whether the block has been sealed.
func (b *Block) Sealed() bool {
	return b.sealed
}

// MinTime returns the smallest sample timestamp appended, or 0 for an empty
// block.
func (b *Block) MinTime() int64 {
	return b.header.StartTime
}

// MaxTime returns the largest sample timestamp appended, or 0 for an empty
// block.
func (b *Block) MaxTime() int64 {
	return b.header.EndTime
}

// NumSeries returns the number of distinct series in the block.
func (b *Block) NumSeries() int {
	return len(b.series)
}

// NumSamples returns the total number of samples across all series.
func (b *Block) NumSamples() int {
	return b.numSamples
}

// Append adds a sample for the given label set.
//
// It fails with ErrBlockSealed on a sealed block and with ErrOutOfOrderSample
// when the timestamp is older than the block's start time beyond the
// configured tolerance. A sample whose timestamp duplicates one already
// stored for the same series is dropped silently, keeping the first
// occurrence; this is what makes replayed writes idempotent.
func (b *Block) Append(lset labels.Labels, sample Sample) error {
	if b.sealed {
		return errs.ErrBlockSealed
	}

	if b.numSamples > 0 && sample.Timestamp < b.header.StartTime-b.tolerance {
		return errs.ErrOutOfOrderSample
	}

	id := (&lset).ID()
	run, ok := b.series[id]
	if !ok {
		run = &seriesSamples{lset: lset.Clone()}
		b.series[id] = run
		b.order = append(b.order, id)
	}

	n := len(run.samples)
	if n == 0 || sample.Timestamp > run.samples[n-1].Timestamp {
		// Fast path: in-order append.
		run.samples = append(run.samples, sample)
	} else {
		idx := sort.Search(n, func(i int) bool {
			return run.samples[i].Timestamp >= sample.Timestamp
		})
		if idx < n && run.samples[idx].Timestamp == sample.Timestamp {
			// Duplicate timestamp: first occurrence wins.
			return nil
		}

		run.samples = append(run.samples, Sample{})
		copy(run.samples[idx+1:], run.samples[idx:])
		run.samples[idx] = sample
	}

	if b.numSamples == 0 {
		b.header.StartTime = sample.Timestamp
		b.header.EndTime = sample.Timestamp
	} else {
		if sample.Timestamp < b.header.StartTime {
			b.header.StartTime = sample.Timestamp
		}
		if sample.Timestamp > b.header.EndTime {
			b.header.EndTime = sample.Timestamp
		}
	}
	b.numSamples++

	return nil
}

// Read returns the samples stored for the given label set, in stored
// (ascending timestamp) order. The returned slice is a view into the block
// and must not be modified; it is nil when the label set is absent.
//
// Read is allowed in both the open and the sealed state.
func (b *Block) Read(lset labels.Labels) []Sample {
	run, ok := b.series[(&lset).ID()]
	if !ok {
		return nil
	}

	return run.samples
}

// Labels returns the label sets present in the block, in label-ID order.
func (b *Block) Labels() []labels.Labels {
	out := make([]labels.Labels, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.series[id].lset)
	}

	return out
}

// Seal flushes the buffered columnar state through the block's codecs,
// recomputes the body checksum, and flips the block to the immutable sealed
// state. Sealing an already-sealed block is a no-op.
func (b *Block) Seal() error {
	if b.sealed {
		return nil
	}

	body, err := b.encodeBody()
	if err != nil {
		return err
	}

	b.body = body
	b.header.CRC32 = section.Checksum(body)
	b.sealed = true

	return nil
}

// Serialize returns the complete wire form of a sealed block: the 40-byte
// header followed by the body. Serializing an open block fails with
// ErrBlockNotSealed.
func (b *Block) Serialize() ([]byte, error) {
	if !b.sealed {
		return nil, errs.ErrBlockNotSealed
	}

	out := make([]byte, 0, section.HeaderSize+len(b.body))
	out = append(out, b.header.Bytes()...)
	out = append(out, b.body...)

	return out, nil
}
