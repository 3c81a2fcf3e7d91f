package fault

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
)

// maxRawMessageLen caps messages taken from unstructured payloads so a
// misrouted HTML page or stack trace does not flood logs and results.
const maxRawMessageLen = 500

// shape identifies which recognized payload shape produced the
// extracted message. Shapes are scanned in a fixed priority order:
// exception envelope, then tabular severity rows, then generic
// message-bearing fields.
type shape int

const (
	shapeNone shape = iota
	shapeEnvelope
	shapeTabular
	shapeGeneric
)

// genericMessageFields are the message-bearing field names recognized
// in loosely structured payloads, in extraction priority order.
var genericMessageFields = []string{
	"message",
	"localizedmessage",
	"errormessage",
	"error_message",
	"error",
	"short_text",
	"shorttext",
	"text",
	"description",
	"reason",
}

// Classify inspects a response status and body and produces the
// normalized fault, if any. The boolean is false when the response
// carries no fault: a 2xx status whose body is absent, unstructured,
// or free of embedded failure reports.
//
// A 2xx response is still classified as a fault when its body carries
// an exception envelope or an error-severity finding, because the
// remote protocol reports some failures inside successful statuses.
func Classify(statusCode int, body []byte) (Classification, bool) {
	success := statusCode >= 200 && statusCode < 300
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) == 0 {
		if success {
			return Classification{}, false
		}
		if statusCode == http.StatusNotFound {
			return New(CategoryNotFound, "request failed with an empty response body", statusCode), true
		}
		return New(CategoryFatal, "request failed with an empty response body", statusCode), true
	}

	p := probeBody(trimmed)
	if !p.parsed {
		if success {
			return Classification{}, false
		}
		return New(CategoryFatal, truncateMessage(string(trimmed)), statusCode), true
	}

	msg, matchText, shp := extract(p)

	if success {
		switch shp {
		case shapeEnvelope:
			// Embedded exception inside a 2xx.
		case shapeTabular:
			if _, ok := FirstError(p.findings); !ok {
				return Classification{}, false
			}
		default:
			return Classification{}, false
		}
		if cat, ok := matchCategory(matchText); ok {
			return New(cat, msg, statusCode), true
		}
		return New(CategoryValidationError, msg, statusCode), true
	}

	if msg == "" {
		msg = truncateMessage(string(trimmed))
	}

	if cat, ok := matchCategory(matchText); ok {
		return New(cat, msg, statusCode), true
	}
	if statusCode == http.StatusNotFound {
		return New(CategoryNotFound, msg, statusCode), true
	}
	if statusCode >= 400 && statusCode < 500 && shp != shapeNone {
		return New(CategoryValidationError, msg, statusCode), true
	}
	return New(CategoryFatal, msg, statusCode), true
}

// FromError normalizes a transport-level failure, such as a timeout or
// connection error, that never produced a response. An error that
// already wraps a Classification is returned as-is so classifications
// survive wrapping.
func FromError(err error) Classification {
	var c Classification
	if errors.As(err, &c) {
		return c
	}
	return New(CategoryFatal, truncateMessage(err.Error()), 0)
}

// extract pulls the human-readable message out of a parsed probe,
// scanning shapes in priority order. matchText is the text keyword
// matching runs against; it includes the exception type id because
// some deployments encode the failure kind only there.
func extract(p probe) (msg, matchText string, shp shape) {
	typeID := p.typeID
	if typeID == "" {
		typeID = p.fields["type"]
	}
	if typeID != "" {
		m := p.fields["message"]
		if m == "" {
			m = p.fields["localizedmessage"]
		}
		if m == "" {
			m = typeID
		}
		return m, typeID + " " + m, shapeEnvelope
	}

	if len(p.findings) > 0 {
		f := p.findings[0]
		if errFinding, ok := FirstError(p.findings); ok {
			f = errFinding
		}
		return f.Message, f.Message, shapeTabular
	}

	for _, field := range genericMessageFields {
		if v := p.fields[field]; v != "" {
			return v, v, shapeGeneric
		}
	}

	return "", "", shapeNone
}

func truncateMessage(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxRawMessageLen {
		return s
	}
	return string(runes[:maxRawMessageLen])
}
