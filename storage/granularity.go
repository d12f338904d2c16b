package storage

// Granularity is the advisory (interval, retention) hint attached to a
// series. The interval informs the seal policy; retention trimming itself is
// driven by the caller through Engine.DropBefore.
type Granularity struct {
	// IntervalMs is the expected sample interval in milliseconds.
	IntervalMs int64
	// RetentionMs is the data retention period in milliseconds.
	RetentionMs int64
}
