// Package anthropic implements llm.Gateway on the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/llm"
	"github.com/nexuslabs/nexus-go/logging"
)

const providerName = "anthropic"

// Config configures the Anthropic gateway.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64 // nil leaves the provider default; 0 is sent as 0
	BaseURL     string
	MaxRetries  int
}

// DefaultConfig returns the defaults used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   4096,
		Temperature: llm.Float(0.7),
		MaxRetries:  2,
	}
}

// Gateway calls Claude.
type Gateway struct {
	client anthropic.Client
	config Config
}

// New creates a Gateway. Empty fields of cfg take DefaultConfig values.
func New(cfg Config) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Gateway{
		client: anthropic.NewClient(opts...),
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
	params := g.buildParams(req)

	start := time.Now()
	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, invocationError(err)
	}

	logging.For("llm").Debug().
		Str("provider", providerName).
		Str("model", string(resp.Model)).
		Str("stop_reason", string(resp.StopReason)).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Dur("latency", time.Since(start)).
		Msg("model call complete")

	return convertResponse(resp), nil
}

// buildParams constructs Anthropic API parameters from a Request
func (g *Gateway) buildParams(req *llm.Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.config.Model),
		MaxTokens: int64(maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	} else if g.config.Temperature != nil {
		params.Temperature = anthropic.Float(*g.config.Temperature)
	}
	return params
}

// convertMessages converts provider-neutral messages, block by block.
func convertMessages(messages []core.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, b := range msg.Content {
			switch b.Type {
			case core.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case core.BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case core.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}

		switch msg.Role {
		case core.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result
}

// convertTools converts tool definitions to Anthropic format
func convertTools(defs []core.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.InputSchema["properties"],
					Required:   llm.RequiredFields(def.InputSchema),
				},
			},
		}
	}
	return result
}

// convertResponse converts a Claude response to content blocks and tool calls.
func convertResponse(resp *anthropic.Message) *llm.ToolResponse {
	out := &llm.ToolResponse{
		Content:    make([]core.ContentBlock, 0, len(resp.Content)),
		StopReason: string(resp.StopReason),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content = append(out.Content, core.NewTextBlock(block.Text))
		case "tool_use":
			input, err := json.Marshal(block.Input)
			if err != nil || len(input) == 0 || string(input) == "null" {
				input = json.RawMessage(`{}`)
			}
			out.Content = append(out.Content, core.NewToolUseBlock(block.ID, block.Name, json.RawMessage(input)))
			out.ToolCalls = append(out.ToolCalls, core.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: json.RawMessage(input),
			})
		}
	}
	return out
}

func invocationError(err error) *llm.InvocationError {
	ie := &llm.InvocationError{Provider: providerName, Err: err}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		ie.StatusCode = apiErr.StatusCode
	}
	return ie
}
