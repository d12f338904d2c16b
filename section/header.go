// Package section defines the fixed binary layout of a serialized block: the
// 40-byte header and the length-prefixed body sections.
package section

import (
	"hash/crc32"
	"unsafe"

	"github.com/arloliu/tachyon/endian"
	"github.com/arloliu/tachyon/errs"
	"github.com/arloliu/tachyon/format"
)

const (
	// MagicNumber identifies a serialized tachyon block ("TACH").
	MagicNumber uint32 = 0x54414348

	// Version is the current block format version.
	Version uint16 = 1

	// HeaderSize is the fixed header size in bytes:
	// magic:u32 | version:u16 | flags:u16 | id:u64 | start:i64 | end:i64 | crc32:u32 | reserved:u32.
	HeaderSize = 40

	// SectionLenSize is the size of the u32 length prefix framing each body
	// section.
	SectionLenSize = 4
)

// Flag bit layout within the packed u16 flags field.
const (
	FlagBigEndian = 0x0001 // bit 0: 0=little-endian body, 1=big-endian body

	tsEncodingShift   = 4      // bits 4-7: timestamp encoding
	tsEncodingMask    = 0x00F0 //
	valEncodingShift  = 8      // bits 8-11: value encoding
	valEncodingMask   = 0x0F00 //
	dictCompressShift = 12     // bits 12-15: label dictionary compression
	dictCompressMask  = 0xF000 //
)

// Flags is the packed option field of a block header. It records the body
// byte order and the codec selection made at block creation.
type Flags uint16

// NewFlags builds a Flags value for the given codec selection with a
// little-endian body.
func NewFlags(tsEnc, valEnc format.EncodingType, dictComp format.CompressionType) Flags {
	var f Flags
	f.SetTimestampEncoding(tsEnc)
	f.SetValueEncoding(valEnc)
	f.SetDictCompression(dictComp)

	return f
}

// IsLittleEndian reports whether body payloads use little-endian byte order.
func (f Flags) IsLittleEndian() bool {
	return f&FlagBigEndian == 0
}

// SetBigEndian marks the body as big-endian.
func (f *Flags) SetBigEndian() {
	*f |= FlagBigEndian
}

// EndianEngine returns the engine matching the body byte order.
func (f Flags) EndianEngine() endian.EndianEngine {
	if f.IsLittleEndian() {
		return endian.GetLittleEndianEngine()
	}

	return endian.GetBigEndianEngine()
}

// TimestampEncoding returns the timestamp codec recorded in the flags.
func (f Flags) TimestampEncoding() format.EncodingType {
	return format.EncodingType((f & tsEncodingMask) >> tsEncodingShift) //nolint:gosec
}

// SetTimestampEncoding records the timestamp codec.
func (f *Flags) SetTimestampEncoding(enc format.EncodingType) {
	*f = (*f &^ tsEncodingMask) | (Flags(enc) << tsEncodingShift)
}

// ValueEncoding returns the value codec recorded in the flags.
func (f Flags) ValueEncoding() format.EncodingType {
	return format.EncodingType((f & valEncodingMask) >> valEncodingShift) //nolint:gosec
}

// SetValueEncoding records the value codec.
func (f *Flags) SetValueEncoding(enc format.EncodingType) {
	*f = (*f &^ valEncodingMask) | (Flags(enc) << valEncodingShift)
}

// DictCompression returns the label dictionary compression recorded in the
// flags.
func (f Flags) DictCompression() format.CompressionType {
	return format.CompressionType((f & dictCompressMask) >> dictCompressShift) //nolint:gosec
}

// SetDictCompression records the label dictionary compression.
func (f *Flags) SetDictCompression(comp format.CompressionType) {
	*f = (*f &^ dictCompressMask) | (Flags(comp) << dictCompressShift)
}

// Validate checks that the flags describe a codec combination this build
// supports.
func (f Flags) Validate() error {
	switch f.TimestampEncoding() {
	case format.TypeRaw, format.TypeDelta:
	default:
		return errs.ErrUnsupportedVersion
	}

	switch f.ValueEncoding() {
	case format.TypeRaw, format.TypeGorilla:
	default:
		return errs.ErrUnsupportedVersion
	}

	switch f.DictCompression() {
	case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
	default:
		return errs.ErrUnsupportedVersion
	}

	return nil
}

// Header is the fixed-size header at the start of a serialized block.
//
// StartTime and EndTime span the min/max sample timestamp actually appended
// to the block, in milliseconds since the Unix epoch. CRC32 (IEEE) covers the
// body bytes that follow the header.
//
// The header itself is always little-endian on the wire; the endianness flag
// governs body payloads only.
type Header struct {
	ID        uint64
	StartTime int64
	EndTime   int64
	CRC32     uint32
	Flags     Flags
}

// Bytes serializes the header into a fresh 40-byte slice.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	e := endian.GetLittleEndianEngine()

	e.PutUint32(b[0:4], MagicNumber)
	e.PutUint16(b[4:6], Version)
	e.PutUint16(b[6:8], uint16(h.Flags))
	e.PutUint64(b[8:16], h.ID)
	// Timestamps are stored as raw two's-complement bits.
	e.PutUint64(b[16:24], *(*uint64)(unsafe.Pointer(&h.StartTime)))
	e.PutUint64(b[24:32], *(*uint64)(unsafe.Pointer(&h.EndTime)))
	e.PutUint32(b[32:36], h.CRC32)
	e.PutUint32(b[36:40], 0) // reserved

	return b
}

// Parse parses the header from the first 40 bytes of data, validating magic,
// version and flags.
func (h *Header) Parse(data []byte) error {
	if len(data) < HeaderSize {
		return errs.ErrInvalidHeaderSize
	}

	e := endian.GetLittleEndianEngine()

	if e.Uint32(data[0:4]) != MagicNumber {
		return errs.ErrInvalidMagicNumber
	}
	if e.Uint16(data[4:6]) != Version {
		return errs.ErrUnsupportedVersion
	}

	h.Flags = Flags(e.Uint16(data[6:8]))
	h.ID = e.Uint64(data[8:16])

	startBits := e.Uint64(data[16:24])
	h.StartTime = *(*int64)(unsafe.Pointer(&startBits))
	endBits := e.Uint64(data[24:32])
	h.EndTime = *(*int64)(unsafe.Pointer(&endBits))

	h.CRC32 = e.Uint32(data[32:36])

	return h.Flags.Validate()
}

// Checksum computes the CRC32 (IEEE) of a serialized block body.
func Checksum(body []byte) uint32 {
	return crc32.ChecksumIEEE(body)
}
