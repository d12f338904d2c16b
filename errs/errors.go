// Package errs defines the sentinel errors shared by all tachyon packages.
//
// Every user-visible failure is one of these sentinels (possibly wrapped with
// additional context via fmt.Errorf and %w), so callers can classify failures
// with errors.Is or, more coarsely, with KindOf.
package errs

import (
	"context"
	"errors"
)

// Kind is a coarse classification of an error, used by API surfaces that need
// to map storage failures onto transport status codes.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindInvalidArgument covers malformed input: empty label names or
	// values, bad matchers and selectors. An unsupported codec configuration
	// is reported as ErrUnsupportedVersion and classified KindCorrupt.
	KindInvalidArgument
	// KindNotFound covers lookups that cannot produce an empty-but-successful
	// result. Note that reading an absent series or enumerating values of an
	// unknown label name is NOT an error; those return empty results.
	KindNotFound
	// KindOutOfRange covers appends of timestamps older than the head block's
	// start beyond the configured tolerance.
	KindOutOfRange
	// KindSealed covers mutations of sealed blocks.
	KindSealed
	// KindCorrupt covers CRC, magic, version and framing failures on
	// deserialize.
	KindCorrupt
	// KindDeadlineExceeded covers context cancellation and deadline expiry.
	KindDeadlineExceeded
	// KindInternal covers codec and invariant violations.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindOutOfRange:
		return "out_of_range"
	case KindSealed:
		return "sealed"
	case KindCorrupt:
		return "corrupt"
	case KindDeadlineExceeded:
		return "deadline_exceeded"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyLabelName is returned when a label with an empty name is added
	// to a label set.
	ErrEmptyLabelName = errors.New("label name must not be empty")

	// ErrEmptyLabelValue is returned when a label with an empty value is added
	// to a label set.
	ErrEmptyLabelValue = errors.New("label value must not be empty")

	// ErrInvalidMatcher is returned when a matcher cannot be constructed, e.g.
	// an empty label name or an invalid regular expression.
	ErrInvalidMatcher = errors.New("invalid matcher")

	// ErrInvalidSelector is returned when a series selector string cannot be
	// parsed.
	ErrInvalidSelector = errors.New("invalid series selector")

	// ErrSeriesNotFound reports a lookup that requires the series to exist.
	// The storage engine does not return it: reads of an absent series yield
	// empty results.
	ErrSeriesNotFound = errors.New("series not found")

	// ErrOutOfOrderSample is returned when a sample is older than the head
	// block's start time beyond the configured out-of-order tolerance.
	ErrOutOfOrderSample = errors.New("sample out of order")

	// ErrBlockSealed is returned when appending to a sealed block.
	ErrBlockSealed = errors.New("block is sealed")

	// ErrBlockNotSealed is returned when serializing a block that has not been
	// sealed yet.
	ErrBlockNotSealed = errors.New("block is not sealed")

	// ErrInvalidMagicNumber is returned when a serialized block does not start
	// with the expected magic number.
	ErrInvalidMagicNumber = errors.New("invalid magic number")

	// ErrUnsupportedVersion is returned when a serialized block carries a
	// format version or codec flags this build does not understand, and when
	// block.WithCodecs is given a codec set this build does not support.
	ErrUnsupportedVersion = errors.New("unsupported block format version")

	// ErrInvalidHeaderSize is returned when the serialized data is too short
	// to contain a block header.
	ErrInvalidHeaderSize = errors.New("invalid header size")

	// ErrChecksumMismatch is returned when the body CRC32 does not match the
	// checksum recorded in the header.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrInvalidSectionLength is returned when a length-prefixed section
	// extends past the end of the serialized data.
	ErrInvalidSectionLength = errors.New("invalid section length")

	// ErrHashCollision is returned when two distinct label sets hash to the
	// same series ID and the registry cannot disambiguate them.
	ErrHashCollision = errors.New("series ID hash collision")

	// ErrEngineClosed is returned by operations on an engine after Close.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrInternal wraps codec and invariant violations that indicate a bug
	// rather than bad input.
	ErrInternal = errors.New("internal error")
)

// KindOf classifies err into a Kind. Unknown errors classify as KindInternal
// so that unexpected failures surface as server-side errors rather than being
// silently attributed to the caller.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindDeadlineExceeded
	case errors.Is(err, ErrEmptyLabelName),
		errors.Is(err, ErrEmptyLabelValue),
		errors.Is(err, ErrInvalidMatcher),
		errors.Is(err, ErrInvalidSelector),
		errors.Is(err, ErrBlockNotSealed):
		return KindInvalidArgument
	case errors.Is(err, ErrSeriesNotFound):
		return KindNotFound
	case errors.Is(err, ErrOutOfOrderSample):
		return KindOutOfRange
	case errors.Is(err, ErrBlockSealed):
		return KindSealed
	case errors.Is(err, ErrInvalidMagicNumber),
		errors.Is(err, ErrUnsupportedVersion),
		errors.Is(err, ErrInvalidHeaderSize),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrInvalidSectionLength):
		return KindCorrupt
	default:
		return KindInternal
	}
}
