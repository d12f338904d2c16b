package encoding

import (
	"encoding/binary"
	"iter"

	"github.com/arloliu/tachyon/internal/pool"
)

// StringDictEncoder encodes a dictionary of strings as length-prefixed UTF-8.
//
// Each entry is a uvarint byte length followed by the string data. Blocks use
// this codec for their label dictionary: one canonical label string per
// series, referenced by dense label IDs elsewhere in the block. An empty
// dictionary encodes to an empty payload and round-trips exactly.
type StringDictEncoder struct {
	temp  [binary.MaxVarintLen64]byte
	buf   *pool.ByteBuffer
	count int
}

var _ ColumnarEncoder[string] = (*StringDictEncoder)(nil)

// NewStringDictEncoder creates a new string dictionary encoder.
func NewStringDictEncoder() *StringDictEncoder {
	return &StringDictEncoder{
		buf: pool.GetBlockBuffer(),
	}
}

// Write encodes a single string.
func (e *StringDictEncoder) Write(s string) {
	e.count++
	n := binary.PutUvarint(e.temp[:], uint64(len(s)))
	e.buf.Grow(n + len(s))
	e.buf.MustWrite(e.temp[:n])
	e.buf.MustWrite([]byte(s))
}

// WriteSlice encodes a slice of strings.
func (e *StringDictEncoder) WriteSlice(ss []string) {
	total := 0
	for _, s := range ss {
		total += binary.MaxVarintLen64 + len(s)
	}
	e.buf.Grow(total)

	for _, s := range ss {
		e.Write(s)
	}
}

// Bytes returns the encoded byte slice.
func (e *StringDictEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of encoded strings.
func (e *StringDictEncoder) Len() int {
	return e.count
}

// Size returns the size in bytes of the encoded strings.
func (e *StringDictEncoder) Size() int {
	return e.buf.Len()
}

// Reset is a no-op; entries carry no cross-value state.
func (e *StringDictEncoder) Reset() {}

// Finish returns the internal buffer to the pool and resets the encoder.
func (e *StringDictEncoder) Finish() {
	pool.PutBlockBuffer(e.buf)
	e.buf = pool.GetBlockBuffer()
	e.count = 0
}

// StringDictDecoder decodes dictionaries written by StringDictEncoder.
type StringDictDecoder struct{}

var _ ColumnarDecoder[string] = StringDictDecoder{}

// NewStringDictDecoder creates a new string dictionary decoder.
func NewStringDictDecoder() StringDictDecoder {
	return StringDictDecoder{}
}

// All returns an iterator yielding all strings from the encoded data.
// The iterator stops early on malformed or truncated entries.
func (d StringDictDecoder) All(data []byte, count int) iter.Seq[string] {
	return func(yield func(string) bool) {
		offset := 0
		for yielded := 0; yielded < count && offset < len(data); yielded++ {
			length, n := binary.Uvarint(data[offset:])
			if n <= 0 {
				return
			}
			offset += n

			end := offset + int(length) //nolint:gosec
			if end > len(data) {
				return
			}

			if !yield(string(data[offset:end])) {
				return
			}
			offset = end
		}
	}
}

// At returns the string at the given index by scanning sequentially.
func (d StringDictDecoder) At(data []byte, index int, count int) (string, bool) {
	if index < 0 || index >= count {
		return "", false
	}

	var result string
	found := false
	i := 0
	for s := range d.All(data, count) {
		if i == index {
			result = s
			found = true
			break
		}
		i++
	}

	return result, found
}
