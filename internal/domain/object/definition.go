package object

// Definition bundles everything a content producer needs to render
// payloads for one object: its identity, the descriptive metadata the
// remote system records at creation, and the source content written
// during population. Attributes carries producer-specific fields the
// lifecycle machinery never interprets.
type Definition struct {
	Identity    Identity
	Description string
	Package     string
	Source      string
	Attributes  map[string]string
}

// Attribute returns the named producer-specific attribute, or "" when
// it is absent.
func (d Definition) Attribute(name string) string {
	if d.Attributes == nil {
		return ""
	}
	return d.Attributes[name]
}
