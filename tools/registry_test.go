package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslabs/nexus-go/tools"
)

func newRegistry(t *testing.T) (*tools.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	return tools.NewRegistry(tools.Builtins(tools.BuiltinConfig{WorkspaceDir: dir})...), dir
}

func TestExecute_Calculate(t *testing.T) {
	r, _ := newRegistry(t)

	res := r.Execute(context.Background(), "calculate", json.RawMessage(`{"expression":"2+2"}`))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, int64(4), res["result"])

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"result":4}`, string(data))
}

func TestExecute_CalculateArithmetic(t *testing.T) {
	r, _ := newRegistry(t)

	tests := []struct {
		expression string
		want       interface{}
	}{
		{"2+2", int64(4)},
		{"7/2", 3.5},
		{"10 / 4", 2.5},
		{"3 * 1.5", 4.5},
		{"2 + 2.5", 4.5},
		{"(1 + 2) * 3", int64(9)},
		{"-6 / 4", -1.5},
		{"1e3 / 8", int64(125)},
		{"1 / 8", 0.125},
		{"7 % 3", int64(1)},
		{"2.5 > 2", true},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			input, err := json.Marshal(map[string]string{"expression": tt.expression})
			require.NoError(t, err)

			res := r.Execute(context.Background(), "calculate", input)
			require.Equal(t, true, res["success"], "error: %v", res["error"])
			assert.Equal(t, tt.want, res["result"])
		})
	}
}

func TestExecute_CalculateError(t *testing.T) {
	r, _ := newRegistry(t)

	res := r.Execute(context.Background(), "calculate", json.RawMessage(`{"expression":"1/0"}`))
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["error"], "division by zero")
}

func TestExecute_UnknownTool(t *testing.T) {
	r, _ := newRegistry(t)

	res := r.Execute(context.Background(), "unknown_tool", json.RawMessage(`{}`))
	assert.Equal(t, tools.Result{"error": "Tool unknown_tool not found"}, res)
}

func TestExecute_HandlerErrorIsCaptured(t *testing.T) {
	failing := tools.New("explode").
		Handler(func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			return nil, errors.New("kaboom")
		}).
		MustBuild()
	panicking := tools.New("panic").
		Handler(func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			panic("handler bug")
		}).
		MustBuild()
	r := tools.NewRegistry(failing, panicking)

	assert.Equal(t, tools.Result{"error": "kaboom"}, r.Execute(context.Background(), "explode", nil))
	assert.Equal(t, tools.Result{"error": "handler bug"}, r.Execute(context.Background(), "panic", nil))
}

func TestExecute_ValidatesSchema(t *testing.T) {
	r, _ := newRegistry(t)

	res := r.Execute(context.Background(), "calculate", json.RawMessage(`{}`))
	require.True(t, res.IsError())
	assert.Contains(t, res["error"], "invalid input for calculate")

	res = r.Execute(context.Background(), "calculate", json.RawMessage(`{"expression": 5}`))
	assert.True(t, res.IsError())
}

func TestExecute_CapabilityGate(t *testing.T) {
	r, dir := newRegistry(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	res := r.Execute(context.Background(), "read_file", json.RawMessage(`{"path":"notes.txt"}`))
	assert.Equal(t, tools.Result{"error": "Tool read_file requires capability fs.read"}, res)

	r.Grant(tools.CapFileRead)
	res = r.Execute(context.Background(), "read_file", json.RawMessage(`{"path":"notes.txt"}`))
	assert.Equal(t, tools.Result{"success": true, "content": "hello"}, res)
}

func TestExecute_WorkspaceConfinement(t *testing.T) {
	r, dir := newRegistry(t)
	r.Grant(tools.CapFileRead, tools.CapFileWrite)

	res := r.Execute(context.Background(), "write_file", json.RawMessage(`{"path":"out/a.txt","content":"data"}`))
	assert.Equal(t, true, res["success"])
	data, err := os.ReadFile(filepath.Join(dir, "out", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	res = r.Execute(context.Background(), "read_file", json.RawMessage(`{"path":"../../etc/passwd"}`))
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["error"], "outside the workspace")
}

func TestExecute_WorkspaceSymlinks(t *testing.T) {
	ctx := context.Background()
	r, dir := newRegistry(t)
	r.Grant(tools.CapFileRead, tools.CapFileWrite)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("top secret"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes", "todo.txt"), []byte("buy milk"), 0o644))

	if err := os.Symlink(outside, filepath.Join(dir, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(outside, "planted.txt"), filepath.Join(dir, "dangling")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "notes"), filepath.Join(dir, "alias")))

	res := r.Execute(ctx, "read_file", json.RawMessage(`{"path":"escape/secret.txt"}`))
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["error"], "outside the workspace")

	res = r.Execute(ctx, "write_file", json.RawMessage(`{"path":"escape/new.txt","content":"x"}`))
	assert.Equal(t, false, res["success"])
	assert.NoFileExists(t, filepath.Join(outside, "new.txt"))

	res = r.Execute(ctx, "write_file", json.RawMessage(`{"path":"dangling","content":"x"}`))
	assert.Equal(t, false, res["success"])
	assert.NoFileExists(t, filepath.Join(outside, "planted.txt"))

	// Links that stay inside the workspace still work
	res = r.Execute(ctx, "read_file", json.RawMessage(`{"path":"alias/todo.txt"}`))
	assert.Equal(t, tools.Result{"success": true, "content": "buy milk"}, res)
}

func TestExecute_Code(t *testing.T) {
	r, _ := newRegistry(t)
	r.Grant(tools.CapCodeExec)

	res := r.Execute(context.Background(), "execute_code",
		json.RawMessage(`{"code":"[x, x * 2.0]","bindings":{"x":21}}`))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, []interface{}{float64(21), float64(42)}, res["result"])
}

func TestDefinitions_Idempotent(t *testing.T) {
	r, _ := newRegistry(t)

	first := r.Definitions()
	second := r.Definitions()
	assert.Equal(t, first, second)

	names := make([]string, len(first))
	for i, d := range first {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"execute_code", "search_web", "read_file", "write_file", "calculate"}, names)

	data, err := json.Marshal(first[0])
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.ElementsMatch(t, []string{"name", "description", "input_schema"}, keys(decoded))
}

func TestRegister_ReplacesInPlace(t *testing.T) {
	r, _ := newRegistry(t)
	r.Register(tools.New("search_web").
		Description("replacement").
		Handler(func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
			return tools.Result{"success": true}, nil
		}).
		MustBuild())

	defs := r.Definitions()
	assert.Len(t, defs, 5)
	assert.Equal(t, "search_web", defs[1].Name)
	assert.Equal(t, "replacement", defs[1].Description)

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, tools.ErrToolNotFound)
}

func TestResultOutcome(t *testing.T) {
	ok, has := tools.Result{"success": true}.Outcome()
	assert.True(t, has)
	assert.True(t, ok)

	ok, has = tools.Result{"error": "x"}.Outcome()
	assert.True(t, has)
	assert.False(t, ok)

	_, has = tools.Result{"results": 1}.Outcome()
	assert.False(t, has)
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
