// Package openai implements llm.Gateway on the OpenAI chat completions API
// (and compatible servers through BaseURL).
package openai

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/llm"
	"github.com/nexuslabs/nexus-go/logging"
)

const providerName = "openai"

// Config configures the OpenAI gateway.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64 // nil leaves the provider default; 0 is sent as 0
	BaseURL     string
}

// DefaultConfig returns the defaults used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		MaxTokens:   4096,
		Temperature: llm.Float(0.7),
	}
}

// Gateway calls an OpenAI-compatible chat model.
type Gateway struct {
	client *openai.Client
	config Config
}

// New creates a Gateway. Empty fields of cfg take DefaultConfig values.
func New(cfg Config) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Gateway{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Generate returns the text of the reply.
func (g *Gateway) Generate(ctx context.Context, req *llm.Request) (string, error) {
	resp, err := g.GenerateWithTools(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GenerateWithTools sends the request with its tool definitions attached.
func (g *Gateway) GenerateWithTools(ctx context.Context, req *llm.Request) (*llm.ToolResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	temperature := g.config.Temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     g.config.Model,
		Messages:  convertMessages(req.System, req.Messages),
		MaxTokens: maxTokens,
	}
	if temperature != nil {
		chatReq.Temperature = float32(*temperature)
		if chatReq.Temperature == 0 {
			// omitempty would drop an exact 0
			chatReq.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, invocationError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.InvocationError{Provider: providerName, Err: errors.New("empty choices in response")}
	}

	logging.For("llm").Debug().
		Str("provider", providerName).
		Str("model", resp.Model).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("latency", time.Since(start)).
		Msg("model call complete")

	return convertChoice(resp.Choices[0]), nil
}

// convertMessages flattens content blocks into chat messages. Tool results
// become one tool-role message each, in block order.
func convertMessages(system string, messages []core.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		if msg.Role == core.RoleAssistant {
			am := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text(),
			}
			for _, b := range msg.Content {
				if b.Type != core.BlockToolUse {
					continue
				}
				args := string(b.Input)
				if args == "" {
					args = "{}"
				}
				am.ToolCalls = append(am.ToolCalls, openai.ToolCall{
					ID:   b.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.Name,
						Arguments: args,
					},
				})
			}
			out = append(out, am)
			continue
		}

		for _, b := range msg.Content {
			if b.Type == core.BlockToolResult {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    b.Content,
					ToolCallID: b.ToolUseID,
				})
			}
		}
		if text := msg.Text(); text != "" {
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			})
		}
	}
	return out
}

func convertTools(defs []core.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(defs))
	for i, def := range defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		}
	}
	return out
}

func convertChoice(choice openai.ChatCompletionChoice) *llm.ToolResponse {
	out := &llm.ToolResponse{StopReason: string(choice.FinishReason)}
	if choice.Message.Content != "" {
		out.Content = append(out.Content, core.NewTextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		input := json.RawMessage(tc.Function.Arguments)
		if len(input) == 0 || !json.Valid(input) {
			input = json.RawMessage(`{}`)
		}
		out.Content = append(out.Content, core.NewToolUseBlock(tc.ID, tc.Function.Name, input))
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return out
}

func invocationError(err error) *llm.InvocationError {
	ie := &llm.InvocationError{Provider: providerName, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		ie.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		ie.StatusCode = reqErr.HTTPStatusCode
	}
	return ie
}
