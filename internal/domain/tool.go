package domain

import (
	"context"

	"kota/internal/value"
)

// Tool is a capability the agent may invoke. Native Go tools and
// script-defined tools both satisfy it.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON Schema document for the accepted arguments.
	Parameters() value.Value
	Invoke(ctx context.Context, args value.Value) (value.Value, error)
}

// ToolDefinition is the metadata advertised to the model for one tool.
type ToolDefinition struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Parameters  value.Value `json:"parameters" yaml:"-"`
}

// Describe returns the definition of t.
func Describe(t Tool) ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}
