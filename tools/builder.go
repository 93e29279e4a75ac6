package tools

import "github.com/pkg/errors"

// Builder assembles a Tool.
//
//	tool, err := tools.New("calculate").
//		Description("Perform mathematical calculations").
//		Schema(tools.ObjectSchema(map[string]interface{}{
//			"expression": tools.StringProperty("Expression to evaluate"),
//		}, "expression")).
//		Handler(handler).
//		Build()
type Builder struct {
	tool Tool
}

// New starts building a tool with the given name.
func New(name string) *Builder {
	return &Builder{tool: Tool{name: name}}
}

// Description sets the description shown to the model.
func (b *Builder) Description(desc string) *Builder {
	b.tool.description = desc
	return b
}

// Schema sets the JSON Schema for the tool input.
func (b *Builder) Schema(schema map[string]interface{}) *Builder {
	b.tool.schema = schema
	return b
}

// Capabilities declares permissions required to run the tool.
func (b *Builder) Capabilities(caps ...Capability) *Builder {
	b.tool.capabilities = append(b.tool.capabilities, caps...)
	return b
}

// Handler sets the function that executes the tool.
func (b *Builder) Handler(h Handler) *Builder {
	b.tool.handler = h
	return b
}

// Build validates and returns the tool.
func (b *Builder) Build() (*Tool, error) {
	t := b.tool
	if t.name == "" {
		return nil, errors.New("tool name is required")
	}
	if t.handler == nil {
		return nil, errors.Errorf("tool %s: handler is required", t.name)
	}
	if t.schema == nil {
		t.schema = ObjectSchema(map[string]interface{}{})
	}

	validator, err := compileSchema(t.schema)
	if err != nil {
		return nil, errors.Wrapf(err, "tool %s", t.name)
	}
	t.validator = validator
	return &t, nil
}

// MustBuild is like Build but panics on error. Intended for static tool tables.
func (b *Builder) MustBuild() *Tool {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
