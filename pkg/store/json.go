// Package store implements the versioned entity store: every mutable
// entity is an immutable identity row plus append-only version rows
// carrying opaque JSON payloads, with a current-version pointer on the
// identity. Version rows are never mutated or deleted outside purge.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// JSONDocument is a custom GORM type for an opaque JSON payload stored
// as text.
type JSONDocument document.Document

// Scan implements the sql.Scanner interface for JSONDocument.
func (d *JSONDocument) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONDocument: %T", value)
	}
	return json.Unmarshal(bytes, d)
}

// Value implements the driver.Valuer interface for JSONDocument.
func (d JSONDocument) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
