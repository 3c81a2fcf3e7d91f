package fault

import "strings"

// Finding is one severity-tagged message extracted from a structured
// response body. The remote system reports validation and check
// results as rows carrying a SEVERITY code and a SHORT_TEXT, sometimes
// inside an HTTP 200 response, so callers inspect findings rather than
// trusting the status line alone.
type Finding struct {
	// Severity is the single-letter severity code, uppercased.
	Severity string

	// Message is the row's short text.
	Message string
}

// IsError reports whether the finding carries an error-class severity.
// The remote system uses E (error), A (abort), and X (exception).
func (f Finding) IsError() bool {
	switch strings.ToUpper(f.Severity) {
	case "E", "A", "X":
		return true
	}
	return false
}

// IsWarning reports whether the finding carries warning severity.
func (f Finding) IsWarning() bool { return strings.ToUpper(f.Severity) == "W" }

// Findings extracts every severity-tagged finding from a structured
// body, in document order. Returns nil when the body is not parseable
// XML or JSON or carries no findings.
func Findings(body []byte) []Finding { return probeBody(body).findings }

// FirstError returns the first error-severity finding.
func FirstError(findings []Finding) (Finding, bool) {
	for _, f := range findings {
		if f.IsError() {
			return f, true
		}
	}
	return Finding{}, false
}
