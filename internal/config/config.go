package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kota/internal/script"
	"kota/internal/value"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// DefaultConfigPath is where the config program is looked up relative to
// the working directory.
const DefaultConfigPath = ".kota/config.lua"

// ErrSetupNotCalled is returned when a config program finishes without
// calling setup.
var ErrSetupNotCalled = errors.New("config did not call setup{...}")

// NotFoundError reports a missing config file.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return "configuration file not found: " + e.Path
}

// Hint tells the user how to fix the error.
func (e *NotFoundError) Hint() string {
	return "create " + DefaultConfigPath + " containing setup{ model = \"gpt-4o\" }"
}

// Config is the result of running the config program.
type Config struct {
	Settings Settings              `json:"settings"`
	Commands map[string]CommandDef `json:"-"`
	// Path is the file the config was loaded from.
	Path string `json:"path"`
	// Warnings lists entries that were skipped while loading.
	Warnings []string `json:"warnings,omitempty"`
}

type Settings struct {
	Model         string        `json:"model" yaml:"model"`
	APIKey        string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIBase       string        `json:"api_base" yaml:"api_base"`
	Temperature   float64       `json:"temperature" yaml:"temperature"`
	EnabledTools  []string      `json:"enabled_tools,omitempty" yaml:"enabled_tools,omitempty"`
	DisabledTools []string      `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`
	ScriptTimeout time.Duration `json:"script_timeout" yaml:"script_timeout"`
	SkillsDir     string        `json:"skills_dir" yaml:"skills_dir"`
	AuditDB       string        `json:"audit_db" yaml:"audit_db"`
}

// CommandKind distinguishes fixed-text commands from scripted ones.
type CommandKind int

const (
	Literal CommandKind = iota
	Compiled
)

func (k CommandKind) String() string {
	if k == Compiled {
		return "function"
	}
	return "string"
}

// CommandDef is one custom command. Template is set for Literal commands,
// Entry for Compiled ones.
type CommandDef struct {
	Kind     CommandKind
	Template string
	Entry    *script.Bytecode
}

// CommandNames returns the custom command names sorted.
func (c *Config) CommandNames() []string {
	names := make([]string, 0, len(c.Commands))
	for n := range c.Commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load runs the config program at path with the default script timeout.
func Load(path string, logger *zap.Logger) (*Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultScriptTimeout)
	defer cancel()
	return LoadContext(ctx, path, logger)
}

// LoadContext runs the config program at path. The program sees only the
// sandboxed libraries, os.getenv and setup.
func LoadContext(ctx context.Context, path string, logger *zap.Logger) (*Config, error) {
	path = ExpandPath(path)
	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var captured *lua.LTable
	setup := func(L *lua.LState) int {
		if captured != nil {
			L.RaiseError("setup called more than once")
			return 0
		}
		captured = L.CheckTable(1)
		return 0
	}

	s := script.NewSession(
		script.WithLogger(logger.Named("config")),
		script.WithEnvLookup(os.LookupEnv),
		script.WithGlobals(map[string]lua.LGFunction{
			"setup":      setup,
			"kota.setup": setup,
		}),
	)
	defer s.Close()

	if err := s.Run(ctx, path, string(src)); err != nil {
		return nil, fmt.Errorf("cannot run config file %s: %w", path, err)
	}
	if captured == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrSetupNotCalled)
	}

	cfg := Defaults()
	cfg.Path = path
	if err := cfg.apply(captured, logger); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	logger.Info("config loaded",
		zap.String("path", path),
		zap.String("model", cfg.Settings.Model),
		zap.Int("commands", len(cfg.Commands)),
		zap.Int("warnings", len(cfg.Warnings)))
	return cfg, nil
}

func (c *Config) apply(tbl *lua.LTable, logger *zap.Logger) error {
	st := &c.Settings
	if err := optString(tbl, "model", &st.Model); err != nil {
		return err
	}
	if err := optString(tbl, "api_key", &st.APIKey); err != nil {
		return err
	}
	if err := optString(tbl, "api_base", &st.APIBase); err != nil {
		return err
	}
	if err := optString(tbl, "skills_dir", &st.SkillsDir); err != nil {
		return err
	}
	if err := optString(tbl, "audit_db", &st.AuditDB); err != nil {
		return err
	}
	if err := optNumber(tbl, "temperature", &st.Temperature); err != nil {
		return err
	}
	var secs float64
	if err := optNumber(tbl, "script_timeout", &secs); err != nil {
		return err
	}
	if secs > 0 {
		st.ScriptTimeout = time.Duration(secs * float64(time.Second))
	}

	var err error
	if st.EnabledTools, err = optStrings(tbl, "enabled_tools", st.EnabledTools); err != nil {
		return err
	}
	if st.DisabledTools, err = optStrings(tbl, "disabled_tools", st.DisabledTools); err != nil {
		return err
	}
	switch tools := tbl.RawGetString("tools").(type) {
	case *lua.LNilType:
	case *lua.LTable:
		if st.EnabledTools, err = optStrings(tools, "enabled", st.EnabledTools); err != nil {
			return fmt.Errorf("tools.%w", err)
		}
		if st.DisabledTools, err = optStrings(tools, "disabled", st.DisabledTools); err != nil {
			return fmt.Errorf("tools.%w", err)
		}
	default:
		return fmt.Errorf("tools must be a table, got %s", tools.Type())
	}

	switch cmds := tbl.RawGetString("commands").(type) {
	case *lua.LNilType:
	case *lua.LTable:
		c.applyCommands(cmds, logger)
	default:
		return fmt.Errorf("commands must be a table, got %s", cmds.Type())
	}
	return nil
}

func (c *Config) applyCommands(cmds *lua.LTable, logger *zap.Logger) {
	cmds.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || name == "" {
			c.warn(logger, fmt.Sprintf("command key %s is not a name, skipped", k.String()))
			return
		}
		switch entry := v.(type) {
		case lua.LString:
			c.Commands[string(name)] = CommandDef{Kind: Literal, Template: string(entry)}
		case *lua.LFunction:
			b, err := script.FromFunction("command "+string(name), entry)
			if err != nil {
				c.warn(logger, fmt.Sprintf("command %q skipped: %v", name, err))
				return
			}
			c.Commands[string(name)] = CommandDef{Kind: Compiled, Entry: b}
		default:
			c.warn(logger, fmt.Sprintf("command %q must be a string or function, got %s", name, v.Type()))
		}
	})
}

func (c *Config) warn(logger *zap.Logger, msg string) {
	c.Warnings = append(c.Warnings, msg)
	logger.Warn("config entry skipped", zap.String("reason", msg))
}

func optString(tbl *lua.LTable, key string, dst *string) error {
	switch v := tbl.RawGetString(key).(type) {
	case *lua.LNilType:
	case lua.LString:
		*dst = string(v)
	default:
		return fmt.Errorf("%s must be a string, got %s", key, v.Type())
	}
	return nil
}

func optNumber(tbl *lua.LTable, key string, dst *float64) error {
	switch v := tbl.RawGetString(key).(type) {
	case *lua.LNilType:
	case lua.LNumber:
		*dst = float64(v)
	default:
		return fmt.Errorf("%s must be a number, got %s", key, v.Type())
	}
	return nil
}

// optStrings reads a list of names. Entries are appended to prev so the
// top-level and nested forms combine.
func optStrings(tbl *lua.LTable, key string, prev []string) ([]string, error) {
	lv := tbl.RawGetString(key)
	if lv == lua.LNil {
		return prev, nil
	}
	v, err := script.ToHost(lv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	switch v.Kind() {
	case value.KindArray:
		for _, it := range v.Items() {
			if it.Kind() != value.KindString {
				return nil, fmt.Errorf("%s must list strings, got %s", key, it.Kind())
			}
			prev = append(prev, it.Str())
		}
		return prev, nil
	case value.KindMap:
		if v.Len() == 0 {
			return prev, nil
		}
	}
	return nil, fmt.Errorf("%s must be a list of strings", key)
}

// Validate checks that the settings have usable values.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Settings.Model) == "" {
		errs = append(errs, "model must not be empty")
	}
	if t := cfg.Settings.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Sprintf("temperature must be between 0 and 2, got %g", t))
	}
	if cfg.Settings.ScriptTimeout <= 0 {
		errs = append(errs, "script_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
