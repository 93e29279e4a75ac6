// Package tools provides the tool registry the agent exposes to the model,
// a builder for tool commands, and the built-in tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/pkg/errors"

	"github.com/nexuslabs/nexus-go/core"
)

// Result is the JSON-object payload a tool returns to the model.
type Result map[string]interface{}

// ErrorResult builds the {error: message} payload.
func ErrorResult(format string, args ...interface{}) Result {
	return Result{"error": fmt.Sprintf(format, args...)}
}

// IsError reports whether the result is an error payload.
func (r Result) IsError() bool {
	_, ok := r["error"]
	return ok
}

// Outcome reports the explicit success signal carried by a result, if any.
// Results with an "error" key are failures; results with a boolean "success"
// key report that value. Anything else carries no signal.
func (r Result) Outcome() (success bool, ok bool) {
	if s, has := r["success"].(bool); has {
		return s, true
	}
	if r.IsError() {
		return false, true
	}
	return false, false
}

// Handler executes a tool. Input has already been validated against the tool's schema.
// Handlers must not touch registry state.
type Handler func(ctx context.Context, input json.RawMessage) (Result, error)

// Capability names a permission a tool needs before it may run.
type Capability string

const (
	CapFileRead  Capability = "fs.read"
	CapFileWrite Capability = "fs.write"
	CapCodeExec  Capability = "code.exec"
)

// Tool is a named command with a parameter schema and a handler.
type Tool struct {
	name         string
	description  string
	schema       map[string]interface{}
	capabilities []Capability
	handler      Handler
	validator    *jsonschema.Resolved
}

// Name returns the tool name.
func (t *Tool) Name() string { return t.name }

// Description returns the tool description.
func (t *Tool) Description() string { return t.description }

// Capabilities returns the permissions the tool requires.
func (t *Tool) Capabilities() []Capability { return t.capabilities }

// Definition returns the model-facing definition of the tool.
func (t *Tool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		InputSchema: t.schema,
	}
}

// Validate checks input against the tool's schema.
func (t *Tool) Validate(input json.RawMessage) error {
	if t.validator == nil {
		return nil
	}
	var instance interface{}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, &instance); err != nil {
		return err
	}
	return t.validator.Validate(instance)
}

// Typed adapts a handler that takes a decoded parameter struct.
func Typed[T any](fn func(ctx context.Context, params T) (Result, error)) Handler {
	return func(ctx context.Context, input json.RawMessage) (Result, error) {
		var params T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &params); err != nil {
				return nil, errors.Wrap(err, "invalid input")
			}
		}
		return fn(ctx, params)
	}
}
