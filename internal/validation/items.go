package validation

import (
	"encoding/json"

	"github.com/rendis/wireflow/pkg/schema"
)

// ItemValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (references, deltas, degenerate combinators)
// 3. DAG (unlock cycles across items)
type ItemValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewItemValidator creates an ItemValidator.
func NewItemValidator() (*ItemValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &ItemValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline over typed items and returns an aggregated result.
// Structural errors short-circuit: semantic and DAG stages are skipped.
func (iv *ItemValidator) Validate(items []*schema.Item) *schema.ValidationResult {
	if items == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "item batch is nil")
		return r
	}

	result := structuralResult(iv.jsonSchema.ValidateItems(items))
	if !result.Valid() {
		return result
	}
	return iv.analyze(items, result)
}

// ValidateJSON runs the pipeline over a raw item batch. The structural stage
// sees the document as sent, before decoding normalizes it.
func (iv *ItemValidator) ValidateJSON(raw []byte) (*schema.ValidationResult, []*schema.Item) {
	result := structuralResult(iv.jsonSchema.ValidateItemsJSON(raw))
	if !result.Valid() {
		return result, nil
	}

	var items []*schema.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result, nil
	}
	return iv.analyze(items, result), items
}

func (iv *ItemValidator) analyze(items []*schema.Item, result *schema.ValidationResult) *schema.ValidationResult {
	result.Merge(validateSemantic(items))

	// A broken graph makes cycle analysis noisy.
	if result.Valid() {
		result.Merge(validateDAG(items))
	}
	return result
}

// ValidateItems satisfies the Validator interface.
func (iv *ItemValidator) ValidateItems(items []*schema.Item) error {
	return iv.Validate(items).ToError()
}

// ValidateDependency delegates to the underlying JSONSchemaValidator.
func (iv *ItemValidator) ValidateDependency(raw []byte) error {
	return iv.jsonSchema.ValidateDependency(raw)
}

// ValidateWith delegates to the underlying JSONSchemaValidator.
func (iv *ItemValidator) ValidateWith(raw, schemaBytes []byte) error {
	return iv.jsonSchema.ValidateWith(raw, schemaBytes)
}

// structuralResult converts JSON Schema error output into a ValidationResult,
// one issue per violation.
func structuralResult(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	sErr, ok := err.(*schema.Error)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if sErr.Details != nil {
		if violations, ok := sErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, sErr.Message)
	return result
}
