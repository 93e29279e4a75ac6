package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/episodic"
	"github.com/nexuslabs/nexus-go/learning"
	"github.com/nexuslabs/nexus-go/llm"
	"github.com/nexuslabs/nexus-go/logging"
	"github.com/nexuslabs/nexus-go/memory"
	"github.com/nexuslabs/nexus-go/memory/embedder/mock"
	"github.com/nexuslabs/nexus-go/memory/store/chromem"
	"github.com/nexuslabs/nexus-go/persist"
	"github.com/nexuslabs/nexus-go/tools"
)

const (
	defaultMemoryResults = 3
	defaultEpisodes      = 5
	defaultParallelTools = 8
)

// Engine is the agent orchestrator: it retrieves context, calls the model,
// dispatches tool calls and records what happened.
type Engine struct {
	gateway  llm.Gateway
	registry *tools.Registry
	memory   memory.Manager
	episodes *episodic.Log
	learning *learning.Engine
	conv     *Conversation // Default conversation used by ProcessMessage

	systemPrompt  string
	memoryResults int
	recentEpisode int
	historyLimit  int
	parallelTools int
	now           func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithMemory sets the semantic memory. Defaults to an in-memory chromem
// store with the mock embedder.
func WithMemory(m memory.Manager) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithEpisodes sets the episodic log. Defaults to an unpersisted log.
func WithEpisodes(l *episodic.Log) Option {
	return func(e *Engine) {
		e.episodes = l
	}
}

// WithLearning sets the learning engine. Defaults to unpersisted state.
func WithLearning(l *learning.Engine) Option {
	return func(e *Engine) {
		e.learning = l
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt. The prompt must contain
// one %s verb, which receives the skill summary.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// WithRetrieval sets how many memories and recent episodes are fetched per turn.
func WithRetrieval(memories, episodes int) Option {
	return func(e *Engine) {
		e.memoryResults = memories
		e.recentEpisode = episodes
	}
}

// WithHistoryLimit sets how many turns the default conversation keeps.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		e.historyLimit = n
	}
}

// WithParallelTools caps concurrent tool executions within one turn.
func WithParallelTools(n int) Option {
	return func(e *Engine) {
		e.parallelTools = n
	}
}

// WithClock overrides the time source for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine around a model gateway and tool registry.
// Stores not supplied through options are created in memory.
func New(ctx context.Context, gateway llm.Gateway, registry *tools.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		gateway:       gateway,
		registry:      registry,
		systemPrompt:  DefaultSystemPrompt,
		memoryResults: defaultMemoryResults,
		recentEpisode: defaultEpisodes,
		historyLimit:  DefaultHistoryLimit,
		parallelTools: defaultParallelTools,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = tools.NewRegistry()
	}
	if e.memory == nil {
		store, err := chromem.New()
		if err != nil {
			return nil, errors.Wrap(err, "create memory store")
		}
		e.memory = memory.NewSimpleManager(store, mock.New(), nil)
	}
	if e.episodes == nil {
		l, err := episodic.New(ctx, persist.NewMemory())
		if err != nil {
			return nil, errors.Wrap(err, "create episodic log")
		}
		e.episodes = l
	}
	if e.learning == nil {
		l, err := learning.New(ctx, persist.NewMemory(), persist.NewMemory())
		if err != nil {
			return nil, errors.Wrap(err, "create learning engine")
		}
		e.learning = l
	}
	e.conv = NewConversation(e.historyLimit)
	return e, nil
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *tools.Registry { return e.registry }

// Memory returns the semantic memory.
func (e *Engine) Memory() memory.Manager { return e.memory }

// Episodes returns the episodic log.
func (e *Engine) Episodes() *episodic.Log { return e.episodes }

// Learning returns the learning engine.
func (e *Engine) Learning() *learning.Engine { return e.learning }

// NewConversation creates a conversation with the engine's history limit.
func (e *Engine) NewConversation() *Conversation {
	return NewConversation(e.historyLimit)
}

// Result is the outcome of one processed message.
type Result struct {
	Response        string               `json:"response"`
	ToolResults     []core.ToolExecution `json:"tool_results"`
	PatternDetected *string              `json:"pattern_detected"`
	MemoriesUsed    int                  `json:"memories_used"`
	Timestamp       time.Time            `json:"timestamp"`

	// Warnings lists persistence failures that did not prevent the response.
	Warnings []string `json:"warnings,omitempty"`
}

// ProcessMessage runs one turn on the engine's default conversation.
func (e *Engine) ProcessMessage(ctx context.Context, text string) (*Result, error) {
	return e.Process(ctx, e.conv, text)
}

// Process runs one turn on conv.
//
// A model failure returns an *llm.InvocationError and records nothing.
// Tool failures are reported to the model as error payloads. Failures to
// record memory, episode or learning state are logged and listed in
// Result.Warnings.
func (e *Engine) Process(ctx context.Context, conv *Conversation, text string) (*Result, error) {
	log := logging.For("engine")
	start := time.Now()

	// === PHASE 1: RETRIEVE CONTEXT ===
	memories, err := e.memory.Query(ctx, text, e.memoryResults)
	if err != nil {
		log.Warn().Err(err).Msg("memory retrieval failed, continuing without memories")
		memories = nil
	}
	recent := e.episodes.Recent(e.recentEpisode)

	// === PHASE 2: BUILD PROMPT ===
	messages := conv.Messages()
	messages = append(messages, core.NewUserMessage(userTurn(buildContext(memories, recent), text)))

	req := &llm.Request{
		Messages: messages,
		System:   systemPrompt(e.systemPrompt, e.learning.Skills()),
		Tools:    e.registry.Definitions(),
	}

	// === PHASE 3: GENERATE ===
	resp, err := e.gateway.GenerateWithTools(ctx, req)
	if err != nil {
		return nil, invocationError(err)
	}
	response := resp.Text()

	// === PHASE 4: ACT ===
	var executions []core.ToolExecution
	if len(resp.ToolCalls) > 0 {
		results := e.dispatch(ctx, resp.ToolCalls)

		executions = make([]core.ToolExecution, len(resp.ToolCalls))
		resultBlocks := make([]core.ContentBlock, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			executions[i] = core.ToolExecution{
				Tool:   call.Name,
				Input:  call.Input,
				Result: results[i],
			}
			resultBlocks[i] = toolResultBlock(call.ID, results[i])
		}

		// === PHASE 5: OBSERVE ===
		req.Messages = append(messages,
			core.Message{Role: core.RoleAssistant, Content: assistantContent(resp)},
			core.Message{Role: core.RoleUser, Content: resultBlocks},
		)
		response, err = e.gateway.Generate(ctx, req)
		if err != nil {
			return nil, invocationError(err)
		}
	}

	result := &Result{
		Response:     response,
		ToolResults:  executions,
		MemoriesUsed: len(memories),
		Timestamp:    e.now(),
	}
	if result.ToolResults == nil {
		result.ToolResults = []core.ToolExecution{}
	}
	warn := func(err error, what string) {
		log.Error().Err(err).Msg(what)
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", what, err))
	}

	// === PHASE 6: LEARN ===
	for _, ex := range executions {
		data := map[string]interface{}{"input": ex.Input, "result": ex.Result}
		if err := e.learning.LearnSkill(ctx, ex.Tool, data); err != nil {
			warn(err, "skill update failed")
		}
		if success, ok := tools.Result(ex.Result).Outcome(); ok {
			if err := e.learning.UpdateSkillSuccess(ctx, ex.Tool, success); err != nil {
				warn(err, "skill success update failed")
			}
		}
	}

	// === PHASE 7: RECORD ===
	content := fmt.Sprintf("User: %s\nAgent: %s", text, response)
	if _, err := e.memory.Add(ctx, content, map[string]string{"type": "conversation"}); err != nil {
		warn(err, "memory write failed")
	}

	toolNames := make([]string, len(executions))
	for i, ex := range executions {
		toolNames[i] = ex.Tool
	}
	ep, err := e.episodes.Append(ctx, text, response, toolNames, map[string]interface{}{
		"relevant_memories": len(memories),
	})
	if err != nil {
		warn(err, "episode write failed")
	}

	if ep != nil {
		patternID, err := e.learning.DetectPattern(ctx, ep)
		if err != nil {
			warn(err, "pattern update failed")
		}
		if patternID != "" {
			result.PatternDetected = &patternID
		}
	}

	conv.Append(text, response)

	log.Info().
		Int("memories", len(memories)).
		Int("tools", len(executions)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", time.Since(start)).
		Msg("message processed")
	return result, nil
}

// assistantContent returns the assistant turn to replay before tool results.
// Gateways that report tool calls without tool_use blocks get them appended.
func assistantContent(resp *llm.ToolResponse) []core.ContentBlock {
	for _, b := range resp.Content {
		if b.Type == core.BlockToolUse {
			return resp.Content
		}
	}
	blocks := make([]core.ContentBlock, 0, len(resp.Content)+len(resp.ToolCalls))
	blocks = append(blocks, resp.Content...)
	for _, call := range resp.ToolCalls {
		blocks = append(blocks, core.NewToolUseBlock(call.ID, call.Name, call.Input))
	}
	return blocks
}

func toolResultBlock(callID string, result tools.Result) core.ContentBlock {
	body, err := json.Marshal(result)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return core.NewToolResultBlock(callID, string(body), result.IsError())
}

func invocationError(err error) error {
	var ie *llm.InvocationError
	if errors.As(err, &ie) {
		return ie
	}
	return &llm.InvocationError{Provider: "gateway", Err: err}
}

// Stats summarizes the agent's stored state.
type Stats struct {
	VectorMemories int            `json:"vector_memories"`
	Episodes       int            `json:"episodes"`
	LearningStats  learning.Stats `json:"learning_stats"`
}

// Stats reports memory, episode and learning totals.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	count, err := e.memory.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count memories")
	}
	return &Stats{
		VectorMemories: count,
		Episodes:       e.episodes.Count(),
		LearningStats:  e.learning.Stats(),
	}, nil
}

// Clear wipes semantic memory, the episodic log and the default
// conversation. Learned patterns and skills are kept.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.memory.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear memory")
	}
	if err := e.episodes.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear episodes")
	}
	e.conv.Reset()
	logging.For("engine").Info().Msg("memories cleared")
	return nil
}
