package core

import "fmt"

// InvalidItemError marks a malformed input item. The item is dropped and
// the run continues.
type InvalidItemError struct {
	ItemID string
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %s: %s", e.ItemID, e.Reason)
}

// ConfigurationError marks a missing or invalid weight/threshold. Fatal at
// startup; a run never begins with a broken configuration.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

// GapConstraintUnsatisfiableError marks a segment that could not be placed
// in any batch before the stream ran out. The segment is dropped and logged.
type GapConstraintUnsatisfiableError struct {
	SegmentID string
}

func (e *GapConstraintUnsatisfiableError) Error() string {
	return fmt.Sprintf("segment %s: gap constraint unsatisfiable", e.SegmentID)
}

// SourceFetchError marks a transient fetch failure at the source boundary.
// Retried per policy; once retries exhaust the thread is dropped.
type SourceFetchError struct {
	Thread string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Thread, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }
