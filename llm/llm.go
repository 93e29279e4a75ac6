// Package llm is the provider-neutral model gateway: one request shape, one
// response shape, and a typed error for failed invocations.
package llm

import (
	"context"
	"fmt"

	"github.com/nexuslabs/nexus-go/core"
)

// Gateway invokes a language model.
type Gateway interface {
	// Generate returns the concatenated text of the model's reply.
	Generate(ctx context.Context, req *Request) (string, error)

	// GenerateWithTools returns the model's content blocks and tool calls,
	// both in emission order.
	GenerateWithTools(ctx context.Context, req *Request) (*ToolResponse, error)
}

// Request is one model invocation.
type Request struct {
	Messages []core.Message
	System   string
	Tools    []core.ToolDefinition

	// Temperature and MaxTokens fall back to the provider's configuration
	// when nil / zero.
	Temperature *float64
	MaxTokens   int
}

// ToolResponse is the model's reply to a tool-enabled request.
type ToolResponse struct {
	// Content holds text and tool_use blocks in emission order.
	Content    []core.ContentBlock
	ToolCalls  []core.ToolCall
	StopReason string
}

// Text concatenates the text blocks of the reply.
func (r *ToolResponse) Text() string {
	return core.JoinText(r.Content)
}

// InvocationError reports a failed model call.
type InvocationError struct {
	Provider   string
	StatusCode int // 0 when the failure happened before a response
	Err        error
}

func (e *InvocationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s invocation failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s invocation failed: %v", e.Provider, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Float is a helper for Request.Temperature.
func Float(f float64) *float64 {
	return &f
}

// RequiredFields extracts the "required" list of a JSON schema, whether it
// was built in Go ([]string) or decoded from JSON ([]interface{}).
func RequiredFields(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
