package fault

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"sort"
	"strings"
)

// probe holds everything a structured parse recovered from a response
// body. The classifier derives messages and categories from it; the
// probe itself only collects.
type probe struct {
	// parsed is true when the body was well-formed XML or JSON, even
	// if nothing recognizable was found inside.
	parsed bool

	// typeID is the exception envelope's type identifier, such as
	// "ExceptionResourceAlreadyExists".
	typeID string

	// fields maps lowercased field names to the first non-empty text
	// seen for that name anywhere in the document.
	fields map[string]string

	// findings are the severity/short-text rows in document order.
	findings []Finding
}

// probeBody sniffs the payload format and runs the matching parser.
// Anything that is not well-formed XML or JSON yields an unparsed
// probe.
func probeBody(body []byte) probe {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return probe{}
	}
	switch trimmed[0] {
	case '<':
		return probeXML(trimmed)
	case '{', '[':
		return probeJSON(trimmed)
	default:
		return probe{}
	}
}

// xmlFrame tracks one open element during the token walk: its
// accumulated character data and the text of its direct children,
// which is what severity/short-text row detection keys off.
type xmlFrame struct {
	name     string
	text     strings.Builder
	children map[string]string
}

func probeXML(data []byte) probe {
	p := probe{fields: make(map[string]string)}
	dec := xml.NewDecoder(bytes.NewReader(data))

	var stack []*xmlFrame
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed XML falls back to raw-text handling.
			return probe{}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			if name == "type" && p.typeID == "" {
				for _, attr := range t.Attr {
					if strings.ToLower(attr.Name.Local) == "id" && attr.Value != "" {
						p.typeID = attr.Value
						break
					}
				}
			}
			stack = append(stack, &xmlFrame{name: name, children: make(map[string]string)})

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if text := strings.TrimSpace(frame.text.String()); text != "" {
				if _, ok := p.fields[frame.name]; !ok {
					p.fields[frame.name] = text
				}
				if len(stack) > 0 {
					parent := stack[len(stack)-1]
					if _, ok := parent.children[frame.name]; !ok {
						parent.children[frame.name] = text
					}
				}
			}

			sev := frame.children["severity"]
			msg := frame.children["short_text"]
			if sev != "" && msg != "" {
				p.findings = append(p.findings, Finding{Severity: strings.ToUpper(sev), Message: msg})
			}
		}
	}

	p.parsed = true
	return p
}

func probeJSON(data []byte) probe {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return probe{}
	}

	p := probe{parsed: true, fields: make(map[string]string)}
	walkJSON(root, &p)
	return p
}

// walkJSON recurses depth-first through the decoded document. Map keys
// are visited in sorted order so extraction is deterministic.
func walkJSON(v any, p *probe) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		lowered := make(map[string]any, len(t))
		for _, k := range keys {
			lk := strings.ToLower(k)
			if _, ok := lowered[lk]; !ok {
				lowered[lk] = t[k]
			}
		}

		if sev, _ := stringValue(lowered["severity"]); sev != "" {
			if msg, _ := stringValue(lowered["short_text"]); msg != "" {
				p.findings = append(p.findings, Finding{Severity: strings.ToUpper(sev), Message: msg})
			}
		}

		if p.typeID == "" {
			switch tv := lowered["type"].(type) {
			case string:
				p.typeID = strings.TrimSpace(tv)
			case map[string]any:
				if id, _ := stringValue(tv["id"]); id != "" {
					p.typeID = id
				}
			}
		}

		for _, k := range keys {
			lk := strings.ToLower(k)
			if s, ok := stringValue(t[k]); ok && s != "" {
				if _, exists := p.fields[lk]; !exists {
					p.fields[lk] = s
				}
			}
		}

		for _, k := range keys {
			walkJSON(t[k], p)
		}

	case []any:
		for _, item := range t {
			walkJSON(item, p)
		}
	}
}

// stringValue extracts text from a scalar string or from the message
// objects some deployments emit, which carry their text under "text"
// or "value".
func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case map[string]any:
		for _, key := range []string{"text", "value"} {
			for k, val := range s {
				if strings.ToLower(k) != key {
					continue
				}
				if str, ok := val.(string); ok {
					return strings.TrimSpace(str), true
				}
			}
		}
	}
	return "", false
}
