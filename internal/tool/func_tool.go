package tool

import (
	"context"

	"kota/internal/domain"
	"kota/internal/value"
)

// Func is the body of a native tool.
type Func func(ctx context.Context, args value.Value) (value.Value, error)

// FuncTool adapts a Go function to domain.Tool.
type FuncTool struct {
	name        string
	description string
	parameters  value.Value
	fn          Func
}

var _ domain.Tool = (*FuncTool)(nil)

func NewFuncTool(name, description string, parameters value.Value, fn Func) *FuncTool {
	return &FuncTool{name: name, description: description, parameters: parameters, fn: fn}
}

func (t *FuncTool) Name() string            { return t.name }
func (t *FuncTool) Description() string     { return t.description }
func (t *FuncTool) Parameters() value.Value { return t.parameters }

func (t *FuncTool) Invoke(ctx context.Context, args value.Value) (value.Value, error) {
	return t.fn(ctx, args)
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// ToolParameters builds a JSON Schema "parameters" object. Properties are
// emitted in the order of names.
func ToolParameters(names []string, properties map[string]Param, required []string) value.Value {
	props := value.NewMap()
	for _, name := range names {
		p := properties[name]
		props.Set(name, value.Object("type", value.String(p.Type), "description", value.String(p.Description)))
	}
	schema := value.NewMap()
	schema.Set("type", value.String("object"))
	schema.Set("properties", value.FromMap(props))
	if len(required) > 0 {
		req := make([]value.Value, len(required))
		for i, r := range required {
			req[i] = value.String(r)
		}
		schema.Set("required", value.Array(req...))
	}
	return value.FromMap(schema)
}

// ArgString returns args[key] as text: strings as is, anything else as JSON.
func ArgString(args value.Value, key string) string {
	v, ok := args.Get(key)
	if !ok || v.IsNull() {
		return ""
	}
	if v.Kind() == value.KindString {
		return v.Str()
	}
	return v.String()
}
