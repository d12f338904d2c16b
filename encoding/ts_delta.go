package encoding

import (
	"encoding/binary"
	"iter"

	"github.com/arloliu/tachyon/internal/pool"
)

// TimestampDeltaEncoder encodes int64 millisecond timestamps using
// delta-of-delta compression with zigzag and varint encoding.
//
// The first timestamp of a sequence is stored as a full varint, the second as
// a zigzag-encoded delta, and every subsequent one as a zigzag-encoded
// delta-of-delta. Regular scrape intervals therefore cost about one byte per
// timestamp after the first two.
//
// The encoding must round-trip exactly; the decoder reconstructs the original
// values bit for bit.
type TimestampDeltaEncoder struct {
	prevTS    int64
	prevDelta int64
	temp      [binary.MaxVarintLen64]byte
	buf       *pool.ByteBuffer
	count     int
	seqCount  int
}

var _ ColumnarEncoder[int64] = (*TimestampDeltaEncoder)(nil)

// NewTimestampDeltaEncoder creates a new delta-of-delta timestamp encoder.
func NewTimestampDeltaEncoder() *TimestampDeltaEncoder {
	return &TimestampDeltaEncoder{
		buf: pool.GetBlockBuffer(),
	}
}

// Write encodes a single timestamp in milliseconds since the Unix epoch.
func (e *TimestampDeltaEncoder) Write(timestampMs int64) {
	e.count++
	e.seqCount++
	e.buf.Grow(binary.MaxVarintLen64)

	if e.seqCount == 1 {
		// First timestamp of the sequence: full varint, no zigzag.
		n := binary.PutUvarint(e.temp[:], uint64(timestampMs)) //nolint:gosec
		e.buf.MustWrite(e.temp[:n])
		e.prevTS = timestampMs

		return
	}

	delta := timestampMs - e.prevTS

	var valToEncode int64
	if e.seqCount == 2 {
		valToEncode = delta
	} else {
		valToEncode = delta - e.prevDelta
	}
	e.prevDelta = delta

	zigzag := (valToEncode << 1) ^ (valToEncode >> 63)
	n := binary.PutUvarint(e.temp[:], uint64(zigzag)) //nolint:gosec
	e.buf.MustWrite(e.temp[:n])

	e.prevTS = timestampMs
}

// WriteSlice encodes a slice of timestamps.
func (e *TimestampDeltaEncoder) WriteSlice(timestampsMs []int64) {
	if len(timestampsMs) == 0 {
		return
	}

	// Optimistic estimate for semi-regular intervals: ~2 bytes per timestamp
	// after the first.
	e.buf.Grow(10 + (len(timestampsMs)-1)*2)

	for _, ts := range timestampsMs {
		e.Write(ts)
	}
}

// Bytes returns the encoded byte slice containing all written timestamps.
func (e *TimestampDeltaEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of encoded timestamps.
func (e *TimestampDeltaEncoder) Len() int {
	return e.count
}

// Size returns the size in bytes of the encoded timestamps.
func (e *TimestampDeltaEncoder) Size() int {
	return e.buf.Len()
}

// Reset clears the sequence state so the next Write starts a new independent
// sequence. Accumulated data, Len and Size are unchanged.
func (e *TimestampDeltaEncoder) Reset() {
	e.prevTS = 0
	e.prevDelta = 0
	e.seqCount = 0
}

// Finish returns the internal buffer to the pool and resets the encoder to a
// fresh, empty session.
func (e *TimestampDeltaEncoder) Finish() {
	pool.PutBlockBuffer(e.buf)
	e.buf = pool.GetBlockBuffer()
	e.prevTS = 0
	e.prevDelta = 0
	e.count = 0
	e.seqCount = 0
}

// TimestampDeltaDecoder decodes timestamps encoded by TimestampDeltaEncoder.
//
// The decoder is stateless; each call operates independently on the provided
// data.
type TimestampDeltaDecoder struct{}

var _ ColumnarDecoder[int64] = TimestampDeltaDecoder{}

// NewTimestampDeltaDecoder creates a new delta-of-delta timestamp decoder.
func NewTimestampDeltaDecoder() TimestampDeltaDecoder {
	return TimestampDeltaDecoder{}
}

// All returns an iterator yielding all timestamps from the encoded data.
// Decoding is sequential; the iterator stops early on malformed varints.
func (d TimestampDeltaDecoder) All(data []byte, count int) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		if len(data) == 0 || count <= 0 {
			return
		}

		offset := 0
		yielded := 0

		firstTS, n := binary.Uvarint(data)
		if n <= 0 {
			return
		}
		offset += n
		yielded++

		curTS := int64(firstTS) //nolint:gosec
		if !yield(curTS) {
			return
		}
		if yielded >= count {
			return
		}

		zigzag, n := binary.Uvarint(data[offset:])
		if n <= 0 {
			return
		}
		offset += n

		delta := int64(zigzag>>1) ^ -(int64(zigzag & 1)) //nolint:gosec
		curTS += delta
		yielded++
		if !yield(curTS) {
			return
		}

		prevDelta := delta

		for yielded < count && offset < len(data) {
			zigzag, n := binary.Uvarint(data[offset:])
			if n <= 0 {
				return
			}
			offset += n

			deltaOfDelta := int64(zigzag>>1) ^ -(int64(zigzag & 1)) //nolint:gosec
			delta = prevDelta + deltaOfDelta
			curTS += delta
			yielded++

			if !yield(curTS) {
				return
			}

			prevDelta = delta
		}
	}
}

// At returns the timestamp at the given index by decoding sequentially up to
// it. For scanning many indices, prefer All.
func (d TimestampDeltaDecoder) At(data []byte, index int, count int) (int64, bool) {
	if index < 0 || index >= count {
		return 0, false
	}

	var result int64
	found := false
	i := 0
	for ts := range d.All(data, count) {
		if i == index {
			result = ts
			found = true
			break
		}
		i++
	}

	return result, found
}
