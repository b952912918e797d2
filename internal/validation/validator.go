package validation

import "github.com/rendis/wireflow/pkg/schema"

// Validator checks item batches and individual dependency documents before they
// are loaded into the editor or persisted.
// Uses JSON Schema Draft 2020-12 for the wire form.
type Validator interface {
	ValidateItems(items []*schema.Item) error
	ValidateDependency(raw []byte) error
}
