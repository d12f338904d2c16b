package encoding

import "iter"

// ColumnarEncoder encodes a homogeneous column of values into bytes.
//
// Encoders accumulate into an internal pooled buffer. Reset clears the
// per-sequence state but keeps the accumulated bytes, allowing several
// independent sequences (one per series) to be packed into one payload.
// Finish returns the buffer to the pool; the encoder is unusable afterwards.
type ColumnarEncoder[T comparable] interface {
	// Bytes returns the encoded byte slice.
	// The returned slice is valid until the next call to Write, WriteSlice,
	// or Finish, and must not be modified by the caller.
	Bytes() []byte

	// Len returns the number of encoded values.
	Len() int

	// Size returns the number of bytes written to the internal buffer.
	Size() int

	// Reset clears the encoder's sequence state but keeps the accumulated
	// data, so the next Write starts a fresh sequence in the same payload.
	Reset()

	// Finish finalizes the session and returns buffer resources to the pool.
	// The encoder must not be used after Finish.
	Finish()

	// Write encodes a single value.
	Write(value T)

	// WriteSlice encodes a slice of values. Optimized for bulk writes.
	WriteSlice(values []T)
}

// ColumnarDecoder decodes a column previously produced by the matching
// ColumnarEncoder. Implementations are stateless and safe for concurrent use.
type ColumnarDecoder[T comparable] interface {
	// All returns an iterator yielding all decoded values.
	//
	// The count parameter is the expected number of values; if the data is
	// malformed or truncated the iterator may yield fewer.
	All(data []byte, count int) iter.Seq[T]

	// At retrieves the value at the given zero-based index.
	// Returns false if the index is out of bounds or the data is malformed.
	At(data []byte, index int, count int) (T, bool)
}
