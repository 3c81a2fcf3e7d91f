// Package producer implements content producers for repository object
// payloads. The generic XML producer covers object types whose create
// and update documents follow the standard descriptor-plus-source
// shape; types with bespoke wire formats supply their own
// object.ContentProducer.
package producer

import (
	"bytes"
	"encoding/xml"
	"errors"
	"sort"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/ahrav/adt-armada/internal/domain/object"
)

// ErrNoIdentity indicates a definition without a usable identity was
// passed to a payload builder.
var ErrNoIdentity = errors.New("object definition has no identity")

const (
	descriptorNamespace = "http://www.sap.com/adt/core"

	descriptorElement = "obj:objectDescriptor"
	sourceElement     = "obj:objectSource"
	attributeElement  = "obj:attribute"
)

// XMLProducer renders the standard XML documents the remote repository
// accepts for most object types: a descriptor element carrying the
// object metadata on create, and a source element wrapping the full
// content on update. Producer-specific attributes from the definition
// are emitted as nested attribute elements in sorted order so payloads
// are deterministic.
type XMLProducer struct{}

var _ object.ContentProducer = (*XMLProducer)(nil)

// NewXMLProducer returns the generic XML content producer.
func NewXMLProducer() *XMLProducer { return &XMLProducer{} }

// ContentType reports the MIME type for both payload directions.
func (p *XMLProducer) ContentType() string { return "application/xml; charset=utf-8" }

// BuildCreatePayload renders the descriptor document that registers
// the object's metadata with the remote repository.
func (p *XMLProducer) BuildCreatePayload(def object.Definition) ([]byte, error) {
	if def.Identity.IsZero() {
		return nil, ErrNoIdentity
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("<" + descriptorElement + ` xmlns:obj="` + descriptorNamespace + `"`)
	writeAttr(buf, "obj:type", def.Identity.Type().String())
	writeAttr(buf, "obj:name", def.Identity.Name())
	if def.Identity.SubGroup() != "" {
		writeAttr(buf, "obj:group", def.Identity.SubGroup())
	}
	if def.Description != "" {
		writeAttr(buf, "obj:description", def.Description)
	}
	if def.Package != "" {
		writeAttr(buf, "obj:package", def.Package)
	}

	if len(def.Attributes) == 0 {
		_, _ = buf.WriteString("/>")
		return copyOut(buf), nil
	}

	_, _ = buf.WriteString(">")
	keys := make([]string, 0, len(def.Attributes))
	for k := range def.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = buf.WriteString("<" + attributeElement)
		writeAttr(buf, "obj:name", k)
		writeAttr(buf, "obj:value", def.Attributes[k])
		_, _ = buf.WriteString("/>")
	}
	_, _ = buf.WriteString("</" + descriptorElement + ">")
	return copyOut(buf), nil
}

// BuildUpdatePayload renders the source document written during
// population. The source text is XML-escaped, not wrapped in CDATA, so
// arbitrary content round-trips.
func (p *XMLProducer) BuildUpdatePayload(def object.Definition) ([]byte, error) {
	if def.Identity.IsZero() {
		return nil, ErrNoIdentity
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("<" + sourceElement + ` xmlns:obj="` + descriptorNamespace + `"`)
	writeAttr(buf, "obj:type", def.Identity.Type().String())
	writeAttr(buf, "obj:name", def.Identity.Name())
	_, _ = buf.WriteString(">")
	_ = xml.EscapeText(buf, []byte(def.Source))
	_, _ = buf.WriteString("</" + sourceElement + ">")
	return copyOut(buf), nil
}

// ExtractReadPayload pulls the object content out of a read response.
// Source reads come back as plain text for most types; descriptor
// reads wrap the content in a source element. Surrounding whitespace
// is trimmed either way so verification compares content, not
// formatting.
func (p *XMLProducer) ExtractReadPayload(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", false
	}
	if trimmed[0] != '<' {
		return string(trimmed), true
	}

	dec := xml.NewDecoder(bytes.NewReader(trimmed))
	var inSource bool
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "objectSource" {
				inSource = true
			}
		case xml.CharData:
			if inSource {
				sb.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "objectSource" && inSource {
				return strings.TrimSpace(sb.String()), true
			}
		}
	}
	return "", false
}

// writeAttr appends an XML attribute with an escaped value.
func writeAttr(buf *bytebufferpool.ByteBuffer, name, value string) {
	_, _ = buf.WriteString(" " + name + `="`)
	_ = xml.EscapeText(buf, []byte(value))
	_, _ = buf.WriteString(`"`)
}

// copyOut detaches the rendered payload from the pooled buffer.
func copyOut(buf *bytebufferpool.ByteBuffer) []byte {
	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out
}
