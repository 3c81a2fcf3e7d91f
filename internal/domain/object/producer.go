package object

// ContentProducer renders the type-specific payloads exchanged with the
// remote system for one family of object types. The lifecycle machinery
// treats payloads as opaque bytes: producers own the wire shape, the
// orchestrator owns sequencing, locking, and fault handling.
//
// Implementations must be safe for concurrent use; the orchestrator
// shares one producer across workflows.
type ContentProducer interface {
	// BuildCreatePayload renders the body of the creation request that
	// registers the object's metadata with the remote repository.
	BuildCreatePayload(def Definition) ([]byte, error)

	// BuildUpdatePayload renders the body of the population request
	// that writes the object's full content.
	BuildUpdatePayload(def Definition) ([]byte, error)

	// ExtractReadPayload pulls the object content out of a read
	// response body. The second result is false when the body carries
	// no extractable content, which verification treats as a mismatch
	// rather than an error.
	ExtractReadPayload(body []byte) (string, bool)

	// ContentType reports the MIME type of the payloads this producer
	// renders, used for the Content-Type and Accept headers.
	ContentType() string
}
