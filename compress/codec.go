// Package compress provides the section compressors available to tachyon
// blocks.
//
// Compression applies to whole block sections after columnar encoding:
// delta-encoded timestamps and label dictionaries compress extremely well,
// Gorilla-encoded values usually do not (the encoding already removed the
// redundancy). The no-op codec is the default.
package compress

import (
	"fmt"

	"github.com/arloliu/tachyon/format"
)

// Compressor compresses a complete block section.
type Compressor interface {
	// Compress compresses the input data and returns the compressed result.
	//
	// The input slice is not modified. Compressing codecs return a newly
	// allocated slice owned by the caller; NoOpCompressor returns the input
	// slice itself. Internal buffers may be reused.
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a section previously produced by the matching
// Compressor.
//
// Implementations must be safe for concurrent use.
type Decompressor interface {
	// Decompress decompresses the input data and returns the original bytes.
	// Returns an error if the data is corrupted or was compressed with an
	// incompatible algorithm.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
	format.CompressionS2:   NewS2Compressor(),
	format.CompressionLZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves a built-in Codec for the specified compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
