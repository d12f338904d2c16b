package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string.
//
// Series IDs are derived from the canonical (sorted) label string, so the
// result is stable across processes and insensitive to label insertion order.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}
