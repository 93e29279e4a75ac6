package core

import "time"

// Episode is one recorded interaction in the episodic log.
type Episode struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	UserMessage   string                 `json:"user_message"`
	AgentResponse string                 `json:"agent_response"`
	ToolsUsed     []string               `json:"tools_used"`
	Context       map[string]interface{} `json:"context"`
}
