package tools

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/pkg/errors"
)

// Schema helpers for building JSON Schema definitions.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// ObjectProperty creates a free-form object property.
func ObjectProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
	}
}

// compileSchema resolves a map-form schema for input validation.
func compileSchema(schema map[string]interface{}) (*jsonschema.Resolved, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema")
	}
	var js jsonschema.Schema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}
	resolved, err := js.Resolve(nil)
	if err != nil {
		return nil, errors.Wrap(err, "resolve schema")
	}
	return resolved, nil
}
