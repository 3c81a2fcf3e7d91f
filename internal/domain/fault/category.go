// Package fault normalizes the remote system's heterogeneous error
// payloads into a small taxonomy the lifecycle machinery can act on.
// The remote side reports failures as XML exception envelopes, tabular
// severity rows, loosely structured JSON objects, or raw text, and it
// sometimes embeds errors inside HTTP 200 responses; this package is
// the single place that turns all of those into a Classification.
package fault

// Category buckets a remote failure by how the lifecycle machinery
// should react to it.
type Category string

const (
	// CategoryAlreadyExists indicates the target object already exists
	// remotely. Surfaced to the caller so it can decide between
	// aborting and deleting first.
	CategoryAlreadyExists Category = "ALREADY_EXISTS"

	// CategoryLocked indicates another session holds the lock on the
	// target object. Never retried within the running workflow.
	CategoryLocked Category = "LOCKED"

	// CategoryNotReadyYet indicates the server is still finalizing a
	// prior activation and the object cannot be read back yet. This is
	// the only transient category.
	CategoryNotReadyYet Category = "NOT_READY_YET"

	// CategoryValidationError indicates the server rejected the
	// request content.
	CategoryValidationError Category = "VALIDATION_ERROR"

	// CategoryNotFound indicates the addressed object or resource does
	// not exist remotely.
	CategoryNotFound Category = "NOT_FOUND"

	// CategoryFatal indicates an unclassifiable or infrastructure
	// failure. Always terminal for the current attempt.
	CategoryFatal Category = "FATAL"
)

// String returns the string representation of the category.
func (c Category) String() string { return string(c) }

// Retryable reports whether the category may be retried locally.
// Only CategoryNotReadyYet qualifies; every other category is terminal
// for the current attempt.
func (c Category) Retryable() bool { return c == CategoryNotReadyYet }
