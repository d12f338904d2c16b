package encoding

import (
	"iter"
	"math"

	"github.com/arloliu/tachyon/endian"
	"github.com/arloliu/tachyon/internal/pool"
)

// ValueRawEncoder encodes float64 values as fixed-width 8-byte IEEE 754 bits.
//
// This is the pass-through value codec. NaN bit patterns are preserved
// exactly because values travel as raw bits, never through float arithmetic.
type ValueRawEncoder struct {
	buf    *pool.ByteBuffer
	engine endian.EndianEngine
	count  int
}

var _ ColumnarEncoder[float64] = (*ValueRawEncoder)(nil)

// NewValueRawEncoder creates a raw value encoder using the given endian
// engine.
func NewValueRawEncoder(engine endian.EndianEngine) *ValueRawEncoder {
	return &ValueRawEncoder{
		buf:    pool.GetBlockBuffer(),
		engine: engine,
	}
}

// Write encodes a single value.
func (e *ValueRawEncoder) Write(val float64) {
	e.count++
	e.buf.B = e.engine.AppendUint64(e.buf.B, math.Float64bits(val))
}

// WriteSlice encodes a slice of values.
func (e *ValueRawEncoder) WriteSlice(values []float64) {
	e.buf.Grow(len(values) * 8)
	for _, v := range values {
		e.Write(v)
	}
}

// Bytes returns the encoded byte slice.
func (e *ValueRawEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of encoded values.
func (e *ValueRawEncoder) Len() int {
	return e.count
}

// Size returns the size in bytes of the encoded values.
func (e *ValueRawEncoder) Size() int {
	return e.buf.Len()
}

// Reset is a no-op for the raw encoder; sequences have no cross-value state.
func (e *ValueRawEncoder) Reset() {}

// Finish returns the internal buffer to the pool and resets the encoder.
func (e *ValueRawEncoder) Finish() {
	pool.PutBlockBuffer(e.buf)
	e.buf = pool.GetBlockBuffer()
	e.count = 0
}

// ValueRawDecoder decodes fixed-width float64 values written by
// ValueRawEncoder.
type ValueRawDecoder struct {
	engine endian.EndianEngine
}

var _ ColumnarDecoder[float64] = ValueRawDecoder{}

// NewValueRawDecoder creates a raw value decoder using the given endian
// engine.
func NewValueRawDecoder(engine endian.EndianEngine) ValueRawDecoder {
	return ValueRawDecoder{engine: engine}
}

// All returns an iterator yielding all values from the encoded data.
func (d ValueRawDecoder) All(data []byte, count int) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		n := len(data) / 8
		if count < n {
			n = count
		}
		for i := 0; i < n; i++ {
			v := math.Float64frombits(d.engine.Uint64(data[i*8 : i*8+8]))
			if !yield(v) {
				return
			}
		}
	}
}

// At returns the value at the given index in O(1).
func (d ValueRawDecoder) At(data []byte, index int, count int) (float64, bool) {
	if index < 0 || index >= count || (index+1)*8 > len(data) {
		return 0, false
	}

	return math.Float64frombits(d.engine.Uint64(data[index*8 : index*8+8])), true
}
