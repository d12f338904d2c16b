package compress

// ZstdCompressor provides Zstandard compression for block sections.
//
// Zstd trades compression speed for ratio, making it the right choice for
// sealed blocks headed to cold storage and for label dictionaries, which are
// highly repetitive. Two implementations exist behind build tags: a pure-Go
// one (klauspost/compress) and a cgo one (valyala/gozstd) for builds where
// cgo is acceptable.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
