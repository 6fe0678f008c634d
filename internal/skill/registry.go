// Package skill provides working modes that add prompt text and narrow the
// tools the model may call.
package skill

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"kota/internal/domain"

	"go.uber.org/zap"
)

// ErrNotFound is returned when activating or removing an unknown skill.
var ErrNotFound = errors.New("skill not found")

// Registry manages available skills and the one that is active.
type Registry struct {
	skills        []domain.SkillDefinition
	lowerKeywords map[string][]string // cached lowercase keywords by skill name
	active        string
	mu            sync.RWMutex
	logger        *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		lowerKeywords: make(map[string][]string),
		logger:        logger,
	}
}

// Register adds a skill, replacing any skill with the same name.
func (r *Registry) Register(skill domain.SkillDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kws := make([]string, len(skill.Keywords))
	for i, kw := range skill.Keywords {
		kws[i] = strings.ToLower(kw)
	}
	r.lowerKeywords[skill.Name] = kws

	for i, s := range r.skills {
		if s.Name == skill.Name {
			r.skills[i] = skill
			r.logger.Info("skill updated", zap.String("name", skill.Name))
			return
		}
	}
	r.skills = append(r.skills, skill)
	r.logger.Debug("skill registered", zap.String("name", skill.Name))
}

// Remove deletes a skill. Removing the active skill deactivates it.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.skills {
		if s.Name == name {
			r.skills = append(r.skills[:i], r.skills[i+1:]...)
			delete(r.lowerKeywords, name)
			if r.active == name {
				r.active = ""
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (r *Registry) Get(name string) (domain.SkillDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.skills {
		if s.Name == name {
			return s, true
		}
	}
	return domain.SkillDefinition{}, false
}

// List returns all registered skills in registration order.
func (r *Registry) List() []domain.SkillDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.SkillDefinition, len(r.skills))
	copy(result, r.skills)
	return result
}

// Match finds the first skill whose keywords appear in input.
func (r *Registry) Match(input string) *domain.SkillDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lowerInput := strings.ToLower(input)
	for i := range r.skills {
		skill := r.skills[i]
		for _, kw := range r.lowerKeywords[skill.Name] {
			if kw != "" && strings.Contains(lowerInput, kw) {
				return &skill
			}
		}
	}
	return nil
}

// Activate makes name the active skill.
func (r *Registry) Activate(name string) error {
	if _, ok := r.Get(name); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.mu.Lock()
	r.active = name
	r.mu.Unlock()
	r.logger.Info("skill activated", zap.String("name", name))
	return nil
}

// Deactivate clears the active skill.
func (r *Registry) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = ""
}

// Active returns the active skill, if any.
func (r *Registry) Active() (domain.SkillDefinition, bool) {
	r.mu.RLock()
	name := r.active
	r.mu.RUnlock()
	if name == "" {
		return domain.SkillDefinition{}, false
	}
	return r.Get(name)
}

// EnhancedPreamble appends the active skill's prompt and tool list to base.
// With no active skill base is returned unchanged.
func (r *Registry) EnhancedPreamble(base string) string {
	s, ok := r.Active()
	if !ok {
		return base
	}
	return fmt.Sprintf("%s\n\n[ACTIVE SKILL: %s]\n%s\n\nAvailable tools: %s",
		base, s.Name, s.Prompt, strings.Join(s.EnabledTools, ", "))
}

// IsToolEnabled reports whether the active skill allows tool. Every tool is
// enabled when no skill is active.
func (r *Registry) IsToolEnabled(tool string) bool {
	s, ok := r.Active()
	if !ok {
		return true
	}
	for _, t := range s.EnabledTools {
		if t == tool {
			return true
		}
	}
	return false
}

// RegisterBuiltins loads the built-in skills.
func (r *Registry) RegisterBuiltins() {
	builtins := []domain.SkillDefinition{
		{
			Name:         "code_review",
			Description:  "Focus on code review and quality analysis",
			Prompt:       "You are an expert code reviewer. Check the code carefully for quality, security, performance and adherence to best practices.",
			EnabledTools: []string{"read_file", "scan_codebase", "grep_search"},
			Keywords:     []string{"review code", "code review"},
			BuiltIn:      true,
		},
		{
			Name:         "refactor",
			Description:  "Focus on refactoring and optimizing code",
			Prompt:       "You are a refactoring expert. Improve the structure, readability and maintainability of the code while keeping its behavior unchanged.",
			EnabledTools: []string{"read_file", "edit_file", "write_file"},
			Keywords:     []string{"refactor", "clean up"},
			BuiltIn:      true,
		},
		{
			Name:         "debug",
			Description:  "Focus on diagnosing and fixing problems",
			Prompt:       "You are a debugging expert. Locate and fix problems in the code, giving a detailed analysis and a concrete solution.",
			EnabledTools: []string{"read_file", "execute_bash", "grep_search"},
			Keywords:     []string{"debug", "stack trace", "crash"},
			BuiltIn:      true,
		},
		{
			Name:         "documentation",
			Description:  "Focus on writing and improving documentation",
			Prompt:       "You are a technical writer. Produce clear, accurate and approachable documentation and code comments.",
			EnabledTools: []string{"read_file", "write_file", "scan_codebase"},
			Keywords:     []string{"document", "docs", "readme"},
			BuiltIn:      true,
		},
	}

	for _, s := range builtins {
		r.Register(s)
	}
}
