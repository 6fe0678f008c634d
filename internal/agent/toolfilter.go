// Package agent is the boundary between the tool registry and an
// OpenAI-compatible model: it decides which tools are advertised and runs
// the tool calls the model makes.
package agent

import "kota/internal/domain"

// ToolGate reports whether a tool may be used in the current context,
// typically the active skill.
type ToolGate interface {
	IsToolEnabled(name string) bool
}

// ToolFilter applies allow/deny rules to tool definitions and tool calls.
type ToolFilter struct {
	allowed map[string]bool // if non-empty, only these tools are allowed
	denied  map[string]bool
	gate    ToolGate
}

// NewToolFilter creates a tool filter from the enabled and disabled lists
// of the settings. Denied tools are blocked even when listed as allowed.
func NewToolFilter(allowed, denied []string) *ToolFilter {
	tf := &ToolFilter{
		allowed: make(map[string]bool, len(allowed)),
		denied:  make(map[string]bool, len(denied)),
	}
	for _, t := range allowed {
		tf.allowed[t] = true
	}
	for _, t := range denied {
		tf.denied[t] = true
	}
	return tf
}

// WithGate returns a copy of tf that also consults g.
func (tf *ToolFilter) WithGate(g ToolGate) *ToolFilter {
	if tf == nil {
		tf = NewToolFilter(nil, nil)
	}
	cp := *tf
	cp.gate = g
	return &cp
}

// FilterDefinitions returns the definitions that pass the filter, keeping
// their order.
func (tf *ToolFilter) FilterDefinitions(defs []domain.ToolDefinition) []domain.ToolDefinition {
	if tf.IsEmpty() {
		return defs
	}

	filtered := make([]domain.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		if tf.IsAllowed(d.Name) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// IsAllowed reports whether the tool name passes the filter.
func (tf *ToolFilter) IsAllowed(name string) bool {
	if tf == nil {
		return true
	}
	if tf.denied[name] {
		return false
	}
	if len(tf.allowed) > 0 && !tf.allowed[name] {
		return false
	}
	if tf.gate != nil && !tf.gate.IsToolEnabled(name) {
		return false
	}
	return true
}

// IsEmpty reports whether the filter has no rules.
func (tf *ToolFilter) IsEmpty() bool {
	return tf == nil || (len(tf.allowed) == 0 && len(tf.denied) == 0 && tf.gate == nil)
}
