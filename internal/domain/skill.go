package domain

// SkillDefinition is a named working mode: extra system-prompt text plus
// the tools the model may use while it is active.
type SkillDefinition struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Prompt       string   `json:"prompt" yaml:"prompt"`
	EnabledTools []string `json:"enabled_tools" yaml:"enabled_tools"`
	// Keywords suggest the skill when they appear in user input.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	BuiltIn  bool     `json:"built_in" yaml:"-"`
}
