package fault

import (
	"fmt"
	"net/http"
)

// Classification is the normalized form of one remote failure. It is
// derived fresh from each response and never persisted.
//
// Classification implements error so call sites can return it directly
// and callers can recover the category with errors.As.
type Classification struct {
	// Category buckets the failure for the lifecycle machinery.
	Category Category

	// Message is the extracted human-readable description.
	Message string

	// StatusCode is the HTTP status that accompanied the failure, or 0
	// when the failure never produced a response.
	StatusCode int

	// Retryable mirrors Category.Retryable; carried on the value so
	// callers holding only the error do not need the category rules.
	Retryable bool
}

// New creates a classification with Retryable derived from the
// category.
func New(category Category, message string, statusCode int) Classification {
	return Classification{
		Category:   category,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  category.Retryable(),
	}
}

// Error combines an HTTP-status-derived prefix with the classified
// message so operators can tell an existence conflict from a lock
// conflict from a rejected payload without reading raw bodies.
func (c Classification) Error() string {
	if c.StatusCode > 0 {
		if text := http.StatusText(c.StatusCode); text != "" {
			return fmt.Sprintf("HTTP %d %s: %s", c.StatusCode, text, c.Message)
		}
		return fmt.Sprintf("HTTP %d: %s", c.StatusCode, c.Message)
	}
	return c.Message
}

// IsZero reports whether the classification is the zero value.
func (c Classification) IsZero() bool { return c == Classification{} }
