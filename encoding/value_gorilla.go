package encoding

import (
	"encoding/binary"
	"iter"
	"math"
	"math/bits"

	"github.com/arloliu/tachyon/internal/pool"
)

// ValueGorillaEncoder implements Facebook's Gorilla compression for float64
// time-series values.
//
// The algorithm XORs each value with its predecessor and stores only the
// meaningful bits:
//
//  1. The first value of a sequence is stored uncompressed (64 bits).
//  2. If the XOR is zero (value unchanged): a single 0 bit.
//  3. Otherwise a 1 control bit, then either a 0 bit reusing the previous
//     leading/trailing window, or a 1 bit followed by 5 bits of leading-zero
//     count, 6 bits of window length, and the meaningful bits.
//
// Values travel as raw bit patterns, so NaN payloads round-trip exactly.
// See https://www.vldb.org/pvldb/vol8/p1816-teller.pdf.
type ValueGorillaEncoder struct {
	bitBuf       uint64
	prevValue    uint64
	bitCount     int
	count        int
	prevLeading  int
	prevTrailing int
	firstValue   bool

	buf *pool.ByteBuffer
}

var _ ColumnarEncoder[float64] = (*ValueGorillaEncoder)(nil)

// NewValueGorillaEncoder creates a new Gorilla encoder for float64 values.
func NewValueGorillaEncoder() *ValueGorillaEncoder {
	return &ValueGorillaEncoder{
		buf:        pool.GetBlockBuffer(),
		firstValue: true,
	}
}

// Write encodes a single float64 value.
func (e *ValueGorillaEncoder) Write(val float64) {
	e.count++
	valBits := math.Float64bits(val)

	if e.firstValue {
		e.firstValue = false
		e.prevValue = valBits
		e.writeBits(valBits, 64)

		return
	}

	e.writeValue(valBits)
}

// WriteSlice encodes a slice of float64 values.
func (e *ValueGorillaEncoder) WriteSlice(values []float64) {
	for _, v := range values {
		e.Write(v)
	}
}

// Bytes returns the encoded byte slice, flushing any pending bits so the
// returned payload is complete and byte-aligned.
func (e *ValueGorillaEncoder) Bytes() []byte {
	if e.bitCount > 0 {
		e.flushBits()
	}

	return e.buf.Bytes()
}

// Len returns the number of encoded values.
func (e *ValueGorillaEncoder) Len() int {
	return e.count
}

// Size returns the number of bytes flushed to the internal buffer. Pending
// bits are not included; call Bytes first for the final size.
func (e *ValueGorillaEncoder) Size() int {
	return e.buf.Len()
}

// Reset starts a new sequence in the same payload. Pending bits of the
// previous sequence are flushed first so every sequence begins on a byte
// boundary; accumulated data is retained.
func (e *ValueGorillaEncoder) Reset() {
	if e.bitCount > 0 {
		e.flushBits()
	}
	e.prevValue = 0
	e.prevLeading = 0
	e.prevTrailing = 0
	e.firstValue = true
}

// Finish returns the internal buffer to the pool and resets the encoder to a
// fresh, empty session.
func (e *ValueGorillaEncoder) Finish() {
	pool.PutBlockBuffer(e.buf)
	e.buf = pool.GetBlockBuffer()
	e.bitBuf = 0
	e.bitCount = 0
	e.prevValue = 0
	e.prevLeading = 0
	e.prevTrailing = 0
	e.count = 0
	e.firstValue = true
}

func (e *ValueGorillaEncoder) writeValue(valBits uint64) {
	xor := valBits ^ e.prevValue
	e.prevValue = valBits

	if xor == 0 {
		// Value unchanged: single 0 bit.
		e.bitBuf <<= 1
		e.bitCount++
		if e.bitCount == 64 {
			e.flushBits()
		}

		return
	}

	e.writeBits(1, 1)

	leading := bits.LeadingZeros64(xor)
	trailing := bits.TrailingZeros64(xor)

	// The leading-zero count is stored in 5 bits, so clamp to 31 and widen
	// the window accordingly.
	if leading > 31 {
		adjustment := leading - 31
		leading = 31
		trailing -= adjustment
		if trailing < 0 {
			trailing = 0
		}
	}

	prevBlockSize := 64 - e.prevLeading - e.prevTrailing
	if prevBlockSize > 0 && prevBlockSize < 64 && leading >= e.prevLeading && trailing >= e.prevTrailing {
		// Reuse the previous window: 0 bit + meaningful bits.
		e.writeBits(0, 1)
		e.writeBits(xor>>e.prevTrailing, prevBlockSize)
	} else {
		// New window: 1 bit + 5-bit leading + 6-bit length + meaningful bits.
		blockSize := 64 - leading - trailing
		e.writeBits(1, 1)
		e.writeBits(uint64(leading), 5)       //nolint:gosec
		e.writeBits(uint64(blockSize-1), 6)   //nolint:gosec
		e.writeBits(xor>>trailing, blockSize) //nolint:gosec

		e.prevLeading = leading
		e.prevTrailing = trailing
	}
}

// writeBits writes the low numBits of value, flushing the bit buffer to the
// byte buffer whenever it fills.
func (e *ValueGorillaEncoder) writeBits(value uint64, numBits int) {
	if numBits == 0 {
		return
	}

	if numBits < 64 {
		value &= (1 << numBits) - 1
	}

	available := 64 - e.bitCount
	if numBits <= available {
		e.bitBuf = (e.bitBuf << numBits) | value
		e.bitCount += numBits
		if e.bitCount == 64 {
			e.flushBits()
		}

		return
	}

	// Split across the buffer boundary.
	highBits := numBits - available
	e.bitBuf = (e.bitBuf << available) | (value >> highBits)
	e.bitCount = 64
	e.flushBits()

	e.bitBuf = value & ((1 << highBits) - 1)
	e.bitCount = highBits
}

// flushBits writes the accumulated bits to the byte buffer, big-endian so the
// most significant bits come first in the stream.
func (e *ValueGorillaEncoder) flushBits() {
	if e.bitCount == 0 {
		return
	}

	numBytes := (e.bitCount + 7) / 8
	alignedBits := e.bitBuf << (64 - e.bitCount)

	startLen := e.buf.Len()
	e.buf.ExtendOrGrow(numBytes)
	bs := e.buf.Slice(startLen, startLen+numBytes)

	if numBytes == 8 {
		binary.BigEndian.PutUint64(bs, alignedBits)
	} else {
		for i := range numBytes {
			shift := 56 - (i * 8)
			bs[i] = byte(alignedBits >> shift)
		}
	}

	e.bitBuf = 0
	e.bitCount = 0
}

// ValueGorillaDecoder decodes float64 values compressed with the Gorilla
// algorithm. It is stateless and safe for concurrent use.
type ValueGorillaDecoder struct{}

var _ ColumnarDecoder[float64] = ValueGorillaDecoder{}

// NewValueGorillaDecoder creates a new Gorilla decoder.
func NewValueGorillaDecoder() ValueGorillaDecoder {
	return ValueGorillaDecoder{}
}

// All returns an iterator yielding all values decoded from data.
// If the data is malformed or truncated, the iterator stops early.
func (d ValueGorillaDecoder) All(data []byte, count int) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		if len(data) == 0 || count <= 0 {
			return
		}

		br := newBitReader(data)

		firstBits, ok := br.readBits(64)
		if !ok {
			return
		}

		prevValue := firstBits
		if !yield(math.Float64frombits(prevValue)) {
			return
		}

		trailing, blockSize := 0, 0
		blockValid := false

		for produced := 1; produced < count; produced++ {
			controlBit, ok := br.readBit()
			if !ok {
				return
			}

			if controlBit == 0 {
				if !yield(math.Float64frombits(prevValue)) {
					return
				}

				continue
			}

			reuseBit, ok := br.readBit()
			if !ok {
				return
			}

			if reuseBit != 0 {
				leading, ok := br.readBitsInt(5)
				if !ok {
					return
				}
				sizeBits, ok := br.readBitsInt(6)
				if !ok {
					return
				}
				blockSize = sizeBits + 1
				trailing = 64 - leading - blockSize
				if trailing < 0 || trailing > 64 {
					return
				}
				blockValid = true
			} else if !blockValid {
				return
			}

			meaningful, ok := br.readBits(blockSize)
			if !ok {
				return
			}

			prevValue ^= meaningful << uint64(trailing) //nolint:gosec
			if !yield(math.Float64frombits(prevValue)) {
				return
			}
		}
	}
}

// At returns the value at the given index by decoding sequentially up to it.
func (d ValueGorillaDecoder) At(data []byte, index int, count int) (float64, bool) {
	if index < 0 || index >= count {
		return 0, false
	}

	var result float64
	found := false
	i := 0
	for v := range d.All(data, count) {
		if i == index {
			result = v
			found = true
			break
		}
		i++
	}

	return result, found
}

// bitReader provides bit-level reading from a byte slice, buffering up to 64
// bits at a time.
type bitReader struct {
	data     []byte
	bytePos  int
	bitBuf   uint64
	bitCount int
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (br *bitReader) readBit() (uint64, bool) {
	if br.bitCount == 0 {
		if !br.fillBuffer() {
			return 0, false
		}
	}

	bit := br.bitBuf >> 63
	br.bitBuf <<= 1
	br.bitCount--

	return bit, true
}

func (br *bitReader) readBitsInt(numBits int) (int, bool) {
	v, ok := br.readBits(numBits)
	return int(v), ok //nolint:gosec
}

func (br *bitReader) readBits(numBits int) (uint64, bool) {
	if numBits == 0 {
		return 0, true
	}

	if numBits <= br.bitCount {
		result := br.bitBuf >> (64 - numBits)
		br.bitBuf <<= numBits
		br.bitCount -= numBits

		return result, true
	}

	var result uint64
	firstRead := true

	for numBits > 0 {
		if br.bitCount == 0 {
			if !br.fillBuffer() {
				return 0, false
			}
		}

		bitsToRead := numBits
		if bitsToRead > br.bitCount {
			bitsToRead = br.bitCount
		}

		shiftedBits := br.bitBuf >> (64 - bitsToRead)
		if firstRead {
			result = shiftedBits
			firstRead = false
		} else {
			result = (result << bitsToRead) | shiftedBits
		}

		br.bitBuf <<= bitsToRead
		br.bitCount -= bitsToRead
		numBits -= bitsToRead
	}

	return result, true
}

func (br *bitReader) fillBuffer() bool {
	if br.bytePos >= len(br.data) {
		return false
	}

	bytesToRead := len(br.data) - br.bytePos
	if bytesToRead > 8 {
		bytesToRead = 8
	}

	if bytesToRead == 8 {
		br.bitBuf = binary.BigEndian.Uint64(br.data[br.bytePos : br.bytePos+8])
		br.bytePos += 8
		br.bitCount = 64

		return true
	}

	br.bitBuf = 0
	for i := 0; i < bytesToRead; i++ {
		br.bitBuf = (br.bitBuf << 8) | uint64(br.data[br.bytePos])
		br.bytePos++
	}

	// Left-align so extraction always happens from the MSB.
	br.bitBuf <<= (8 - bytesToRead) * 8
	br.bitCount = bytesToRead * 8

	return true
}
