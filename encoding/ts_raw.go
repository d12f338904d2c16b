package encoding

import (
	"iter"

	"github.com/arloliu/tachyon/endian"
	"github.com/arloliu/tachyon/internal/pool"
)

// TimestampRawEncoder encodes int64 timestamps as fixed-width 8-byte values.
//
// This is the pass-through timestamp codec: no compression, O(1) random
// access in the decoder. Useful when timestamps are irregular enough that
// delta-of-delta saves nothing, or when decode latency matters more than
// size.
type TimestampRawEncoder struct {
	buf    *pool.ByteBuffer
	engine endian.EndianEngine
	count  int
}

var _ ColumnarEncoder[int64] = (*TimestampRawEncoder)(nil)

// NewTimestampRawEncoder creates a raw timestamp encoder using the given
// endian engine.
func NewTimestampRawEncoder(engine endian.EndianEngine) *TimestampRawEncoder {
	return &TimestampRawEncoder{
		buf:    pool.GetBlockBuffer(),
		engine: engine,
	}
}

// Write encodes a single timestamp.
func (e *TimestampRawEncoder) Write(timestampMs int64) {
	e.count++
	e.buf.B = e.engine.AppendUint64(e.buf.B, uint64(timestampMs)) //nolint:gosec
}

// WriteSlice encodes a slice of timestamps.
func (e *TimestampRawEncoder) WriteSlice(timestampsMs []int64) {
	e.buf.Grow(len(timestampsMs) * 8)
	for _, ts := range timestampsMs {
		e.Write(ts)
	}
}

// Bytes returns the encoded byte slice.
func (e *TimestampRawEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of encoded timestamps.
func (e *TimestampRawEncoder) Len() int {
	return e.count
}

// Size returns the size in bytes of the encoded timestamps.
func (e *TimestampRawEncoder) Size() int {
	return e.buf.Len()
}

// Reset is a no-op for the raw encoder; sequences have no cross-value state.
func (e *TimestampRawEncoder) Reset() {}

// Finish returns the internal buffer to the pool and resets the encoder.
func (e *TimestampRawEncoder) Finish() {
	pool.PutBlockBuffer(e.buf)
	e.buf = pool.GetBlockBuffer()
	e.count = 0
}

// TimestampRawDecoder decodes fixed-width timestamps written by
// TimestampRawEncoder.
type TimestampRawDecoder struct {
	engine endian.EndianEngine
}

var _ ColumnarDecoder[int64] = TimestampRawDecoder{}

// NewTimestampRawDecoder creates a raw timestamp decoder using the given
// endian engine.
func NewTimestampRawDecoder(engine endian.EndianEngine) TimestampRawDecoder {
	return TimestampRawDecoder{engine: engine}
}

// All returns an iterator yielding all timestamps from the encoded data.
func (d TimestampRawDecoder) All(data []byte, count int) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		n := len(data) / 8
		if count < n {
			n = count
		}
		for i := 0; i < n; i++ {
			ts := int64(d.engine.Uint64(data[i*8 : i*8+8])) //nolint:gosec
			if !yield(ts) {
				return
			}
		}
	}
}

// At returns the timestamp at the given index in O(1).
func (d TimestampRawDecoder) At(data []byte, index int, count int) (int64, bool) {
	if index < 0 || index >= count || (index+1)*8 > len(data) {
		return 0, false
	}

	return int64(d.engine.Uint64(data[index*8 : index*8+8])), true //nolint:gosec
}
