// Package encoding provides the columnar encoders and decoders used inside
// tachyon blocks.
//
// Three capabilities exist, each with a pass-through (raw) implementation and
// a compressed one:
//
//   - Timestamps: raw fixed-width int64, or delta-of-delta with zigzag+varint
//     compression (TimestampDeltaEncoder).
//   - Values: raw fixed-width float64 bits, or Gorilla XOR compression
//     (ValueGorillaEncoder). Both round-trip NaN bit patterns exactly.
//   - Label dictionaries: length-prefixed strings (StringDictEncoder).
//
// Encoders follow a common session shape: Write/WriteSlice accumulate into a
// pooled buffer, Bytes returns the encoded payload, Reset starts a new
// sequence while retaining accumulated data, and Finish returns the buffer to
// the pool. Decoders are stateless and expose iterator-based access.
package encoding
