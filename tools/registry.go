package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/logging"
)

// ErrToolNotFound is returned by Get lookups for unregistered names.
var ErrToolNotFound = errors.New("tool not found")

// Registry maps tool names to tools. Registration order is preserved.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	order   []string
	granted map[Capability]bool
}

// NewRegistry creates a registry holding the given tools.
// Tools that require capabilities only run once those are granted.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{
		tools:   make(map[string]*Tool),
		granted: make(map[Capability]bool),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any tool with the same name in place.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.name]; !exists {
		r.order = append(r.order, t.name)
	}
	r.tools[t.name] = t
}

// Grant allows tools requiring the given capabilities to run.
func (r *Registry) Grant(caps ...Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range caps {
		r.granted[c] = true
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, errors.Wrap(ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns the model-facing definitions in registration order.
func (r *Registry) Definitions() []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]core.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool. It never fails: unknown tools, missing
// capabilities, invalid input, handler errors and panics all come back as an
// {error: message} result.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (result Result) {
	log := logging.For("tools")

	r.mu.RLock()
	t, ok := r.tools[name]
	var missing Capability
	if ok {
		for _, c := range t.capabilities {
			if !r.granted[c] {
				missing = c
				break
			}
		}
	}
	r.mu.RUnlock()

	if !ok {
		return ErrorResult("Tool %s not found", name)
	}
	if missing != "" {
		log.Warn().Str("tool", name).Str("capability", string(missing)).Msg("capability not granted")
		return ErrorResult("Tool %s requires capability %s", name, missing)
	}
	if err := t.Validate(input); err != nil {
		return ErrorResult("invalid input for %s: %v", name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("tool", name).Interface("panic", p).Msg("tool handler panicked")
			result = Result{"error": fmt.Sprint(p)}
		}
	}()

	res, err := t.handler(ctx, input)
	if err != nil {
		log.Debug().Str("tool", name).Err(err).Msg("tool handler failed")
		return Result{"error": err.Error()}
	}
	if res == nil {
		res = Result{}
	}
	return res
}
