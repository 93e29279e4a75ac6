package engine_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/engine"
	"github.com/nexuslabs/nexus-go/episodic"
	"github.com/nexuslabs/nexus-go/learning"
	"github.com/nexuslabs/nexus-go/llm"
	"github.com/nexuslabs/nexus-go/memory"
	"github.com/nexuslabs/nexus-go/persist"
	"github.com/nexuslabs/nexus-go/tools"
)

// fakeGateway replays scripted replies and records every request.
type fakeGateway struct {
	mu        sync.Mutex
	replies   []*llm.ToolResponse // consumed by GenerateWithTools, last one repeats
	followUp  string
	toolErr   error
	followErr error
	requests  []llm.Request
}

func (f *fakeGateway) record(req *llm.Request) {
	cp := *req
	cp.Messages = append([]core.Message(nil), req.Messages...)
	f.requests = append(f.requests, cp)
}

func (f *fakeGateway) GenerateWithTools(ctx context.Context, req *llm.Request) (*llm.ToolResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(req)
	if f.toolErr != nil {
		return nil, f.toolErr
	}
	if len(f.replies) == 0 {
		return &llm.ToolResponse{Content: []core.ContentBlock{core.NewTextBlock("ok")}, StopReason: "end_turn"}, nil
	}
	resp := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return resp, nil
}

func (f *fakeGateway) Generate(ctx context.Context, req *llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(req)
	if f.followErr != nil {
		return "", f.followErr
	}
	return f.followUp, nil
}

func (f *fakeGateway) last() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func textReply(text string) *llm.ToolResponse {
	return &llm.ToolResponse{Content: []core.ContentBlock{core.NewTextBlock(text)}, StopReason: "end_turn"}
}

func toolReply(text string, calls ...core.ToolCall) *llm.ToolResponse {
	resp := &llm.ToolResponse{StopReason: "tool_use", ToolCalls: calls}
	if text != "" {
		resp.Content = append(resp.Content, core.NewTextBlock(text))
	}
	for _, c := range calls {
		resp.Content = append(resp.Content, core.NewToolUseBlock(c.ID, c.Name, c.Input))
	}
	return resp
}

func sleepTool(name string, d time.Duration) *tools.Tool {
	return tools.New(name).
		Description("sleeps then reports its name").
		Handler(func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			time.Sleep(d)
			return tools.Result{"success": true, "tool": name}, nil
		}).
		MustBuild()
}

func newEngine(t *testing.T, gw llm.Gateway, registry *tools.Registry, opts ...engine.Option) *engine.Engine {
	t.Helper()
	e, err := engine.New(context.Background(), gw, registry, opts...)
	require.NoError(t, err)
	return e
}

func lastUserText(req llm.Request) string {
	return req.Messages[len(req.Messages)-1].Text()
}

func TestProcessMessage_PlainResponse(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{replies: []*llm.ToolResponse{textReply("Sure, noted.")}}
	registry := tools.NewRegistry(tools.Builtins(tools.BuiltinConfig{WorkspaceDir: t.TempDir()})...)
	e := newEngine(t, gw, registry)

	res, err := e.ProcessMessage(ctx, "schedule my alpha beta meeting")
	require.NoError(t, err)

	assert.Equal(t, "Sure, noted.", res.Response)
	assert.Empty(t, res.ToolResults)
	assert.Zero(t, res.MemoriesUsed)
	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.PatternDetected)
	assert.Equal(t, "pattern_0", *res.PatternDetected)

	req := gw.last()
	assert.Contains(t, req.System, "Current Skills: Building initial skills")
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "# Relevant Context\n\n\n\n# Current Request:\nschedule my alpha beta meeting", lastUserText(req))
	assert.Len(t, req.Tools, len(registry.Definitions()))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorMemories)
	assert.Equal(t, 1, stats.Episodes)
	assert.Equal(t, 1, stats.LearningStats.TotalPatterns)

	ep := e.Episodes().Recent(1)[0]
	assert.Equal(t, "schedule my alpha beta meeting", ep.UserMessage)
	assert.Equal(t, "Sure, noted.", ep.AgentResponse)
	assert.Equal(t, []string{}, ep.ToolsUsed)
	assert.Equal(t, 0, ep.Context["relevant_memories"])
}

func TestProcessMessage_UsesRetrievedContext(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{replies: []*llm.ToolResponse{textReply("first answer"), textReply("second answer")}}
	e := newEngine(t, gw, nil)

	_, err := e.ProcessMessage(ctx, "remember that my cat is called Miso")
	require.NoError(t, err)

	res, err := e.ProcessMessage(ctx, "what is my cat called")
	require.NoError(t, err)
	assert.Equal(t, 1, res.MemoriesUsed)
	require.NotNil(t, res.PatternDetected)
	assert.Equal(t, "pattern_0", *res.PatternDetected) // matched through "called"

	req := gw.last()
	require.Len(t, req.Messages, 3)
	assert.Equal(t, core.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "remember that my cat is called Miso", req.Messages[0].Text())
	assert.Equal(t, "first answer", req.Messages[1].Text())

	prompt := lastUserText(req)
	assert.Contains(t, prompt, "## Relevant Memories:\n- User: remember that my cat is called Miso\nAgent: first answer\n")
	assert.Contains(t, prompt, "\n## Recent Interactions:\n- User: remember that my cat is called Miso\n  Agent: first answer\n")
	assert.True(t, strings.HasSuffix(prompt, "\n\n# Current Request:\nwhat is my cat called"))
}

func TestProcessMessage_ToolResultsKeepEmissionOrder(t *testing.T) {
	ctx := context.Background()
	registry := tools.NewRegistry(
		sleepTool("slow", 80*time.Millisecond),
		sleepTool("fast", 0),
	)
	gw := &fakeGateway{
		replies: []*llm.ToolResponse{toolReply("Running both.",
			core.ToolCall{ID: "call_t1", Name: "slow", Input: json.RawMessage(`{}`)},
			core.ToolCall{ID: "call_t2", Name: "fast", Input: json.RawMessage(`{}`)},
		)},
		followUp: "Both done.",
	}
	e := newEngine(t, gw, registry)

	res, err := e.ProcessMessage(ctx, "run the slow and fast tools")
	require.NoError(t, err)
	assert.Equal(t, "Both done.", res.Response)

	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, "slow", res.ToolResults[0].Tool)
	assert.Equal(t, "slow", res.ToolResults[0].Result["tool"])
	assert.Equal(t, "fast", res.ToolResults[1].Tool)

	// Follow-up carries the assistant turn, then one tool_result per call in order
	follow := gw.last()
	n := len(follow.Messages)
	require.GreaterOrEqual(t, n, 3)
	assistant := follow.Messages[n-2]
	assert.Equal(t, core.RoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 3)
	assert.Equal(t, "Running both.", assistant.Content[0].Text)
	assert.Equal(t, "call_t1", assistant.Content[1].ID)

	results := follow.Messages[n-1]
	assert.Equal(t, core.RoleUser, results.Role)
	require.Len(t, results.Content, 2)
	assert.Equal(t, core.BlockToolResult, results.Content[0].Type)
	assert.Equal(t, "call_t1", results.Content[0].ToolUseID)
	assert.Equal(t, "call_t2", results.Content[1].ToolUseID)
	assert.JSONEq(t, `{"success":true,"tool":"slow"}`, results.Content[0].Content)
	assert.False(t, results.Content[0].IsError)
	assert.NotEmpty(t, follow.Tools)

	ep := e.Episodes().Recent(1)[0]
	assert.Equal(t, []string{"slow", "fast"}, ep.ToolsUsed)
	assert.Equal(t, "Both done.", ep.AgentResponse)

	skills := e.Learning().Skills()
	require.Len(t, skills, 2)
	assert.Equal(t, "slow", skills[0].Name)
	assert.Equal(t, "fast", skills[1].Name)
	assert.Equal(t, 1, skills[0].Level)
	assert.Equal(t, 1.0, skills[0].SuccessRate)
}

func TestProcessMessage_ToolFailureDoesNotAbortTurn(t *testing.T) {
	ctx := context.Background()
	registry := tools.NewRegistry(tools.Builtins(tools.BuiltinConfig{WorkspaceDir: t.TempDir()})...)
	gw := &fakeGateway{
		replies: []*llm.ToolResponse{toolReply("",
			core.ToolCall{ID: "c1", Name: "does_not_exist", Input: json.RawMessage(`{}`)},
			core.ToolCall{ID: "c2", Name: tools.ToolCalculate, Input: json.RawMessage(`{"expression":"1/0"}`)},
			core.ToolCall{ID: "c3", Name: tools.ToolCalculate, Input: json.RawMessage(`{"expression":"6*7"}`)},
		)},
		followUp: "One worked.",
	}
	e := newEngine(t, gw, registry)

	res, err := e.ProcessMessage(ctx, "try some things")
	require.NoError(t, err)
	assert.Equal(t, "One worked.", res.Response)

	require.Len(t, res.ToolResults, 3)
	assert.Equal(t, "Tool does_not_exist not found", res.ToolResults[0].Result["error"])
	assert.Contains(t, res.ToolResults[1].Result, "error")
	assert.Equal(t, true, res.ToolResults[2].Result["success"])

	follow := gw.last()
	blocks := follow.Messages[len(follow.Messages)-1].Content
	require.Len(t, blocks, 3)
	assert.True(t, blocks[0].IsError)
	assert.True(t, blocks[1].IsError)
	assert.False(t, blocks[2].IsError)

	skill, ok := e.Learning().Skill(tools.ToolCalculate)
	require.True(t, ok)
	assert.Equal(t, 1, skill.Uses)
	assert.InDelta(t, 0.5, skill.SuccessRate, 1e-9)

	failed, ok := e.Learning().Skill("does_not_exist")
	require.True(t, ok)
	assert.Equal(t, 0.0, failed.SuccessRate)
}

func TestProcessMessage_ModelFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{toolErr: &llm.InvocationError{Provider: "anthropic", StatusCode: 529, Err: errors.New("overloaded")}}
	e := newEngine(t, gw, nil)

	res, err := e.ProcessMessage(ctx, "hello there friend")
	require.Error(t, err)
	assert.Nil(t, res)

	var ie *llm.InvocationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 529, ie.StatusCode)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.VectorMemories)
	assert.Zero(t, stats.Episodes)
	assert.Zero(t, stats.LearningStats.TotalPatterns)
}

func TestProcessMessage_FollowUpFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	registry := tools.NewRegistry(sleepTool("quick", 0))
	gw := &fakeGateway{
		replies:   []*llm.ToolResponse{toolReply("", core.ToolCall{ID: "c1", Name: "quick", Input: json.RawMessage(`{}`)})},
		followErr: errors.New("connection reset"),
	}
	e := newEngine(t, gw, registry)

	_, err := e.ProcessMessage(ctx, "do the quick thing")
	require.Error(t, err)

	var ie *llm.InvocationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "gateway", ie.Provider)

	assert.Zero(t, e.Episodes().Count())
	assert.Empty(t, e.Learning().Skills())
}

func TestProcessMessage_PersistenceFailureBecomesWarning(t *testing.T) {
	ctx := context.Background()

	patterns := persist.NewMemory()
	skills := persist.NewMemory()
	episodes := persist.NewMemory()
	learn, err := learning.New(ctx, patterns, skills)
	require.NoError(t, err)
	log, err := episodic.New(ctx, episodes)
	require.NoError(t, err)

	diskFull := errors.New("disk full")
	patterns.FailSave = diskFull
	episodes.FailSave = diskFull

	gw := &fakeGateway{replies: []*llm.ToolResponse{textReply("Still answering.")}}
	e := newEngine(t, gw, nil, engine.WithLearning(learn), engine.WithEpisodes(log))

	res, err := e.ProcessMessage(ctx, "schedule my alpha beta meeting")
	require.NoError(t, err)
	assert.Equal(t, "Still answering.", res.Response)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "episode write failed")
	assert.Contains(t, res.Warnings[1], "pattern update failed")

	// In-memory state still advanced
	require.NotNil(t, res.PatternDetected)
	assert.Equal(t, "pattern_0", *res.PatternDetected)
	assert.Equal(t, 1, e.Episodes().Count())
}

// brokenMemory fails every read and write.
type brokenMemory struct {
	err   error
	adds  []string
	query int
}

func (m *brokenMemory) Add(ctx context.Context, content string, metadata map[string]string) (string, error) {
	m.adds = append(m.adds, content)
	return "", m.err
}

func (m *brokenMemory) Query(ctx context.Context, text string, n int) ([]memory.Entry, error) {
	m.query++
	return nil, m.err
}

func (m *brokenMemory) Delete(ctx context.Context, id string) error { return m.err }
func (m *brokenMemory) Count(ctx context.Context) (int, error)      { return 0, m.err }
func (m *brokenMemory) Clear(ctx context.Context) error             { return m.err }

func TestProcessMessage_MemoryFailuresDoNotAbortTurn(t *testing.T) {
	ctx := context.Background()
	mem := &brokenMemory{err: errors.New("vector store offline")}
	gw := &fakeGateway{replies: []*llm.ToolResponse{textReply("Answered anyway.")}}
	e := newEngine(t, gw, nil, engine.WithMemory(mem))

	res, err := e.ProcessMessage(ctx, "what did we discuss yesterday")
	require.NoError(t, err)

	assert.Equal(t, "Answered anyway.", res.Response)
	assert.Zero(t, res.MemoriesUsed)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "memory write failed")
	assert.Contains(t, res.Warnings[0], "vector store offline")

	// Retrieval failed, so the prompt carries an empty context block
	assert.Equal(t, 1, mem.query)
	assert.Equal(t, "# Relevant Context\n\n\n\n# Current Request:\nwhat did we discuss yesterday", lastUserText(gw.last()))

	// The write was attempted and the rest of the turn was recorded
	assert.Equal(t, []string{"User: what did we discuss yesterday\nAgent: Answered anyway."}, mem.adds)
	require.Equal(t, 1, e.Episodes().Count())
	assert.Equal(t, 0, e.Episodes().Recent(1)[0].Context["relevant_memories"])
}

func TestProcessMessage_HistoryTrimmedToLimit(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	e := newEngine(t, gw, nil)

	for i := 0; i < 5; i++ {
		_, err := e.ProcessMessage(ctx, "turn")
		require.NoError(t, err)
	}

	// 6 retained turns plus the current request
	req := gw.last()
	assert.Len(t, req.Messages, engine.DefaultHistoryLimit+1)
	assert.Equal(t, core.RoleUser, req.Messages[0].Role)
}

func TestOptions_RetrievalHistoryAndPrompt(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	registry := tools.NewRegistry(sleepTool("slow", 20*time.Millisecond), sleepTool("fast", 0))
	e := newEngine(t, gw, registry,
		engine.WithRetrieval(1, 1),
		engine.WithHistoryLimit(2),
		engine.WithParallelTools(1),
		engine.WithSystemPrompt("Skills: %s"),
	)

	for _, msg := range []string{"message one", "message two", "message three"} {
		_, err := e.ProcessMessage(ctx, msg)
		require.NoError(t, err)
	}

	gw.replies = []*llm.ToolResponse{toolReply("",
		core.ToolCall{ID: "s", Name: "slow", Input: json.RawMessage(`{}`)},
		core.ToolCall{ID: "f", Name: "fast", Input: json.RawMessage(`{}`)},
	)}
	gw.followUp = "both ran"
	res, err := e.ProcessMessage(ctx, "message four")
	require.NoError(t, err)
	assert.Equal(t, 1, res.MemoriesUsed)
	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, "slow", res.ToolResults[0].Tool)
	assert.Equal(t, "fast", res.ToolResults[1].Tool)

	first := gw.requests[len(gw.requests)-2]
	assert.Equal(t, "Skills: Building initial skills", first.System)
	assert.Len(t, first.Messages, 3, "two retained messages plus the current request")
	turn := lastUserText(first)
	assert.Equal(t, 1, strings.Count(turn, "\n  Agent: "))
	assert.Contains(t, turn, "- User: message three\n")
}

func TestProcess_SeparateConversations(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	e := newEngine(t, gw, nil)

	a := e.NewConversation()
	b := e.NewConversation()
	_, err := e.Process(ctx, a, "hello from a")
	require.NoError(t, err)
	_, err = e.Process(ctx, b, "hello from b")
	require.NoError(t, err)

	assert.Equal(t, 2, a.Len())
	req := gw.last()
	assert.Len(t, req.Messages, 1)
	assert.Equal(t, 2, e.Episodes().Count())
}

func TestSystemPrompt_ListsFirstFiveSkills(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	e := newEngine(t, gw, nil)

	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, e.Learning().LearnSkill(ctx, name, nil))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, e.Learning().LearnSkill(ctx, "b", nil))
	}

	_, err := e.ProcessMessage(ctx, "hi")
	require.NoError(t, err)
	assert.Contains(t, gw.last().System, "Current Skills: a (lvl 1), b (lvl 2), c (lvl 1), d (lvl 1), e (lvl 1)\n")
}

func TestClear_KeepsLearning(t *testing.T) {
	ctx := context.Background()
	registry := tools.NewRegistry(sleepTool("quick", 0))
	gw := &fakeGateway{
		replies:  []*llm.ToolResponse{toolReply("", core.ToolCall{ID: "c1", Name: "quick", Input: json.RawMessage(`{}`)})},
		followUp: "done",
	}
	e := newEngine(t, gw, registry)

	_, err := e.ProcessMessage(ctx, "schedule my alpha beta meeting")
	require.NoError(t, err)

	require.NoError(t, e.Clear(ctx))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.VectorMemories)
	assert.Zero(t, stats.Episodes)
	assert.Equal(t, 1, stats.LearningStats.TotalSkills)
	assert.Equal(t, 1, stats.LearningStats.TotalPatterns)

	gw.replies = []*llm.ToolResponse{textReply("fresh")}
	_, err = e.ProcessMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, gw.last().Messages, 1)
}
