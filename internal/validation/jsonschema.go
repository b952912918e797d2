package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/wireflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	dependencySchemaURL = "https://wireflow.dev/schemas/dependency.json"
	itemsSchemaURL      = "https://wireflow.dev/schemas/items.json"
)

// dependencySchemaJSON describes the wire form of one dependency node.
// The seven members are mutually exclusive so oneOf reports the closest match.
const dependencySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://wireflow.dev/schemas/dependency.json",
  "type": "object",
  "oneOf": [
    { "$ref": "#/$defs/empty" },
    { "$ref": "#/$defs/stub" },
    { "$ref": "#/$defs/action" },
    { "$ref": "#/$defs/proximity" },
    { "$ref": "#/$defs/and" },
    { "$ref": "#/$defs/or" },
    { "$ref": "#/$defs/time" }
  ],
  "$defs": {
    "itemId": {
      "type": ["integer", "string"],
      "pattern": "^[0-9]+$"
    },
    "empty": {
      "type": "object",
      "maxProperties": 0
    },
    "stub": {
      "type": "object",
      "required": ["generalItemId"],
      "properties": {
        "generalItemId": { "$ref": "#/$defs/itemId" }
      },
      "additionalProperties": false
    },
    "action": {
      "type": "object",
      "required": ["type", "generalItemId", "action"],
      "properties": {
        "type": { "const": "org.celstec.arlearn2.beans.dependencies.ActionDependency" },
        "generalItemId": { "$ref": "#/$defs/itemId" },
        "action": { "type": "string", "minLength": 1 },
        "scope": { "type": "string" }
      }
    },
    "proximity": {
      "type": "object",
      "required": ["type", "generalItemId", "lat", "lng", "radius"],
      "properties": {
        "type": { "const": "org.celstec.arlearn2.beans.dependencies.ProximityDependency" },
        "generalItemId": { "$ref": "#/$defs/itemId" },
        "lat": { "type": "number", "minimum": -90, "maximum": 90 },
        "lng": { "type": "number", "minimum": -180, "maximum": 180 },
        "radius": { "type": "number", "exclusiveMinimum": 0 }
      }
    },
    "and": {
      "type": "object",
      "required": ["type", "dependencies"],
      "properties": {
        "type": { "const": "org.celstec.arlearn2.beans.dependencies.AndDependency" },
        "dependencies": { "type": "array", "items": { "$ref": "#" } }
      }
    },
    "or": {
      "type": "object",
      "required": ["type", "dependencies"],
      "properties": {
        "type": { "const": "org.celstec.arlearn2.beans.dependencies.OrDependency" },
        "dependencies": { "type": "array", "items": { "$ref": "#" } }
      }
    },
    "time": {
      "type": "object",
      "required": ["type", "offset", "timeDelta"],
      "properties": {
        "type": { "const": "org.celstec.arlearn2.beans.dependencies.TimeDependency" },
        "offset": { "$ref": "#" },
        "timeDelta": { "type": "integer", "minimum": 0 }
      }
    }
  }
}`

// itemsSchemaJSON describes a batch of host items. Unknown item fields are
// allowed because the host owns the item model.
const itemsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://wireflow.dev/schemas/items.json",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id"],
    "properties": {
      "id": { "type": "integer" },
      "name": { "type": "string" },
      "type": { "type": "string" },
      "authoringX": { "type": "number" },
      "authoringY": { "type": "number" },
      "lat": { "type": "number", "minimum": -90, "maximum": 90 },
      "lng": { "type": "number", "minimum": -180, "maximum": 180 },
      "actions": {
        "type": "array",
        "items": { "type": "string", "minLength": 1 }
      },
      "dependsOn": { "$ref": "https://wireflow.dev/schemas/dependency.json" },
      "disappearOn": { "$ref": "https://wireflow.dev/schemas/dependency.json" }
    }
  }
}`

// JSONSchemaValidator implements the Validator interface using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	itemsSchema      *jsonschema.Schema
	dependencySchema *jsonschema.Schema

	// mu guards the cache of host-supplied schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the item and
// dependency schemas pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()
	for url, src := range map[string]string{
		dependencySchemaURL: dependencySchemaJSON,
		itemsSchemaURL:      itemsSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	depSchema, err := c.Compile(dependencySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile dependency schema: %w", err)
	}
	itemsSchema, err := c.Compile(itemsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile items schema: %w", err)
	}

	return &JSONSchemaValidator{
		itemsSchema:      itemsSchema,
		dependencySchema: depSchema,
		cache:            make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateItems validates typed items by checking their encoded form.
func (v *JSONSchemaValidator) ValidateItems(items []*schema.Item) error {
	if items == nil {
		return schema.NewError(schema.ErrCodeValidation, "item batch is nil")
	}
	doc, err := toJSONValue(items)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize items").WithCause(err)
	}
	if err := v.itemsSchema.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// ValidateItemsJSON validates a raw item batch document.
func (v *JSONSchemaValidator) ValidateItemsJSON(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "items document is not valid JSON").WithCause(err)
	}
	if err := v.itemsSchema.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// ValidateDependency validates a single raw dependency document.
func (v *JSONSchemaValidator) ValidateDependency(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "dependency document is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "dependency document is not valid JSON").WithCause(err)
	}
	if err := v.dependencySchema.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// ValidateWith validates a raw document against a host-supplied schema, for
// example one that constrains item types the editor does not know about.
// The schema is compiled and cached for subsequent calls with the same bytes.
func (v *JSONSchemaValidator) ValidateWith(raw, schemaBytes []byte) error {
	if len(schemaBytes) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(schemaBytes)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid schema").WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "document is not valid JSON").WithCause(err)
	}
	if err := compiled.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("wireflow://host-schema/%d", len(v.cache))

	// The built-in schemas are registered so host schemas can $ref them.
	c := newCompiler()
	for u, src := range map[string]string{
		dependencySchemaURL: dependencySchemaJSON,
		itemsSchemaURL:      itemsSchemaJSON,
	} {
		builtin, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", u, err)
		}
		if err := c.AddResource(u, builtin); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", u, err)
		}
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// toSchemaError converts a jsonschema.ValidationError into a schema.Error
// listing every leaf violation.
func toSchemaError(err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages prefixed with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
