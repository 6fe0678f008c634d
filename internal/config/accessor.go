package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"kota/internal/value"
)

// View returns the settings as a structured value with secrets masked,
// in the order they are documented.
func View(cfg *Config) value.Value {
	s := Sanitize(cfg).Settings
	m := value.NewMap()
	m.Set("model", value.String(s.Model))
	m.Set("api_key", value.String(s.APIKey))
	m.Set("api_base", value.String(s.APIBase))
	m.Set("temperature", value.Float(s.Temperature))
	m.Set("enabled_tools", value.MustFromAny(nonNil(s.EnabledTools)))
	m.Set("disabled_tools", value.MustFromAny(nonNil(s.DisabledTools)))
	m.Set("script_timeout", value.String(s.ScriptTimeout.String()))
	m.Set("skills_dir", value.String(s.SkillsDir))
	m.Set("audit_db", value.String(s.AuditDB))

	cmds := make([]value.Value, 0, len(cfg.Commands))
	for _, name := range cfg.CommandNames() {
		cmds = append(cmds, value.String(name))
	}
	m.Set("commands", value.Array(cmds...))
	return value.FromMap(m)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// GetByPath retrieves a setting by dot-notation path (e.g. "model" or
// "enabled_tools.0").
func GetByPath(cfg *Config, path string) (value.Value, error) {
	current := View(cfg)
	for _, key := range strings.Split(path, ".") {
		switch current.Kind() {
		case value.KindMap:
			v, ok := current.Get(key)
			if !ok {
				return value.Null(), fmt.Errorf("key not found: %s", path)
			}
			current = v
		case value.KindArray:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= current.Len() {
				return value.Null(), fmt.Errorf("invalid array index: %s", key)
			}
			current = current.Items()[idx]
		default:
			return value.Null(), fmt.Errorf("cannot traverse into %s at %s", current.Kind(), key)
		}
	}
	return current, nil
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	cp := *cfg
	if cp.Settings.APIKey != "" {
		cp.Settings.APIKey = maskString(cp.Settings.APIKey)
	}
	return &cp
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every top-level setting path with its current value,
// sorted by path.
func ListPaths(cfg *Config) []string {
	v := View(cfg)
	keys := v.Map().Keys()
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		item, _ := v.Get(k)
		lines = append(lines, k+" = "+item.String())
	}
	return lines
}
