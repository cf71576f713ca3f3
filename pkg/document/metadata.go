package document

import "encoding/json"

// MetadataFields are the payload keys owned by the server. They are
// stripped from incoming payloads before a version row is written, and
// re-injected from the identity/version rows on read. webapp_version
// is stripped as well; the write stamp re-supplies it from the
// X-Webapp-Version header, so a client echo never lingers in the
// stored payload.
var MetadataFields = []string{
	"id",
	"version_id",
	"created_on",
	"created_by",
	"updated_on",
	"updated_by",
	"server_version",
	"webapp_version",
}

// StripMetadata returns a copy of the document with server-managed
// fields removed. A nil document yields an empty one.
func StripMetadata(doc Document) Document {
	stripped := DeepCopy(doc)
	for _, field := range MetadataFields {
		delete(stripped, field)
	}
	return stripped
}

// DeepCopy clones a document through a JSON round trip. A nil document
// yields an empty one, never nil.
func DeepCopy(doc Document) Document {
	copied := Document{}
	if doc == nil {
		return copied
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		// Payloads originate from decoded JSON, so this cannot fail on
		// well-formed input; fall back to a shallow copy.
		for k, v := range doc {
			copied[k] = v
		}
		return copied
	}
	_ = json.Unmarshal(raw, &copied)
	return copied
}
