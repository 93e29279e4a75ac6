package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Built-in tool names.
const (
	ToolExecuteCode = "execute_code"
	ToolSearchWeb   = "search_web"
	ToolReadFile    = "read_file"
	ToolWriteFile   = "write_file"
	ToolCalculate   = "calculate"
)

// BuiltinConfig configures the built-in tools.
type BuiltinConfig struct {
	// WorkspaceDir confines read_file and write_file. Paths outside it are rejected.
	WorkspaceDir string

	// MaxFileBytes caps how much read_file returns. Default: 1 MiB.
	MaxFileBytes int64
}

// Builtins returns the default tool set in its canonical order.
func Builtins(cfg BuiltinConfig) []*Tool {
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = "."
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 1 << 20
	}
	fs := &workspace{root: cfg.WorkspaceDir, maxBytes: cfg.MaxFileBytes}

	return []*Tool{
		New(ToolExecuteCode).
			Description("Evaluate a CEL program in a sandbox. Optional bindings are exposed as variables. No file, network or process access.").
			Schema(ObjectSchema(map[string]interface{}{
				"code":     StringProperty("CEL program to evaluate"),
				"bindings": ObjectProperty("Optional variables available to the program"),
			}, "code")).
			Capabilities(CapCodeExec).
			Handler(Typed(executeCode)).
			MustBuild(),
		New(ToolSearchWeb).
			Description("Search the web for information").
			Schema(ObjectSchema(map[string]interface{}{
				"query": StringProperty("Search query"),
			}, "query")).
			Handler(Typed(searchWeb)).
			MustBuild(),
		New(ToolReadFile).
			Description("Read contents of a file in the workspace").
			Schema(ObjectSchema(map[string]interface{}{
				"path": StringProperty("File path to read"),
			}, "path")).
			Capabilities(CapFileRead).
			Handler(Typed(fs.read)).
			MustBuild(),
		New(ToolWriteFile).
			Description("Write content to a file in the workspace").
			Schema(ObjectSchema(map[string]interface{}{
				"path":    StringProperty("File path to write"),
				"content": StringProperty("Content to write"),
			}, "path", "content")).
			Capabilities(CapFileWrite).
			Handler(Typed(fs.write)).
			MustBuild(),
		New(ToolCalculate).
			Description("Perform mathematical calculations").
			Schema(ObjectSchema(map[string]interface{}{
				"expression": StringProperty("Mathematical expression to evaluate"),
			}, "expression")).
			Handler(Typed(calculate)).
			MustBuild(),
	}
}

type calculateInput struct {
	Expression string `json:"expression"`
}

func calculate(ctx context.Context, in calculateInput) (Result, error) {
	value, err := evalArithmetic(ctx, in.Expression)
	if err != nil {
		return Result{"success": false, "error": err.Error()}, nil
	}
	return Result{"success": true, "result": value}, nil
}

type executeCodeInput struct {
	Code     string                 `json:"code"`
	Bindings map[string]interface{} `json:"bindings"`
}

func executeCode(ctx context.Context, in executeCodeInput) (Result, error) {
	value, err := evalCEL(ctx, in.Code, in.Bindings)
	if err != nil {
		return Result{"success": false, "error": err.Error()}, nil
	}
	return Result{"success": true, "result": value}, nil
}

type searchWebInput struct {
	Query string `json:"query"`
}

// searchWeb returns a simulated result; there is no search backend.
func searchWeb(ctx context.Context, in searchWebInput) (Result, error) {
	return Result{
		"success": true,
		"results": []map[string]interface{}{
			{"title": "Result for: " + in.Query, "snippet": "This is a simulated search result."},
		},
	}, nil
}

type workspace struct {
	root     string
	maxBytes int64
}

// resolve maps a user path into the workspace, rejecting escapes. Symlinks
// are followed before the check, so a link cannot point outside the root.
func (w *workspace) resolve(path string) (string, error) {
	abs, err := filepath.Abs(w.root)
	if err != nil {
		return "", errors.Wrap(err, "resolve workspace")
	}
	root, err := realPath(abs)
	if err != nil {
		return "", errors.Wrap(err, "resolve workspace")
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(abs, target)
	}
	target, err = realPath(filepath.Clean(target))
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", path)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("path %s is outside the workspace", path)
	}
	return target, nil
}

// realPath evaluates symlinks in the longest existing prefix of path and
// appends the part that does not exist yet. A dangling link is an error.
func realPath(path string) (string, error) {
	existing := path
	for {
		real, err := filepath.EvalSymlinks(existing)
		if err == nil {
			rest, err := filepath.Rel(existing, path)
			if err != nil {
				return "", err
			}
			return filepath.Join(real, rest), nil
		}
		if _, lerr := os.Lstat(existing); lerr == nil {
			return "", errors.Wrapf(err, "evaluate %s", existing)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return path, nil
		}
		existing = parent
	}
}

type readFileInput struct {
	Path string `json:"path"`
}

func (w *workspace) read(ctx context.Context, in readFileInput) (Result, error) {
	target, err := w.resolve(in.Path)
	if err != nil {
		return Result{"success": false, "error": err.Error()}, nil
	}

	info, err := os.Stat(target)
	if err != nil {
		return Result{"success": false, "error": err.Error()}, nil
	}
	if info.Size() > w.maxBytes {
		return Result{"success": false, "error": fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), w.maxBytes)}, nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return Result{"success": false, "error": err.Error()}, nil
	}
	return Result{"success": true, "content": string(data)}, nil
}

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (w *workspace) write(ctx context.Context, in writeFileInput) (Result, error) {
	target, err := w.resolve(in.Path)
	if err != nil {
		return Result{"success": false, "error": err.Error()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Result{"success": false, "error": err.Error()}, nil
	}
	if err := os.WriteFile(target, []byte(in.Content), 0o644); err != nil {
		return Result{"success": false, "error": err.Error()}, nil
	}
	return Result{"success": true, "path": in.Path}, nil
}
