package core

import "encoding/json"

// ToolDefinition is the machine-readable description of a tool sent to the model.
// The handler is never part of it.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCall is a model-issued request to run a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolExecution records one tool invocation within a turn.
type ToolExecution struct {
	Tool   string                 `json:"tool"`
	Input  json.RawMessage        `json:"input"`
	Result map[string]interface{} `json:"result"`
}
