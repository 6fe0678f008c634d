// Package command runs the custom commands defined in the config program
// and parses the command lines that invoke them.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"kota/internal/config"
	"kota/internal/domain"
	"kota/internal/metrics"
	"kota/internal/script"
	"kota/internal/value"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrUnknownCommand is returned when executing a name with no definition.
var ErrUnknownCommand = errors.New("unknown command")

// Builtins are the chat commands the CLI handles itself. They take part in
// completion but cannot be executed through the registry.
var Builtins = []string{
	"/help", "/quit", "/exit", "/config", "/tools", "/commands",
	"/skills", "/skill", "/skill-off", "/metrics",
}

// Registry holds custom commands. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	cmds   map[string]config.CommandDef
	logger *zap.Logger

	audit   domain.AuditLogger
	metrics *metrics.Collector
}

// Option configures a Registry.
type Option func(*Registry)

// WithAudit records every execution in a.
func WithAudit(a domain.AuditLogger) Option {
	return func(r *Registry) { r.audit = a }
}

// WithMetrics counts executions in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = c }
}

func NewRegistry(cmds map[string]config.CommandDef, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		cmds:   make(map[string]config.CommandDef, len(cmds)),
		logger: logger,
	}
	for name, def := range cmds {
		r.cmds[name] = def
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a command.
func (r *Registry) Register(name string, def config.CommandDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cmds[name]; exists {
		r.logger.Info("command replaced", zap.String("name", name))
	}
	r.cmds[name] = def
}

// List returns the command names sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cmds))
	for n := range r.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cmds[name]
	return ok
}

// Type returns "string" or "function" for a registered command.
func (r *Registry) Type(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.cmds[name]
	if !ok {
		return "", false
	}
	return def.Kind.String(), true
}

// Complete returns the slash commands, builtin and custom, that start with
// prefix, sorted. prefix includes the leading "/".
func (r *Registry) Complete(prefix string) []string {
	if !strings.HasPrefix(prefix, "/") {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		if strings.HasPrefix(c, prefix) && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, b := range Builtins {
		add(b)
	}
	for _, n := range r.List() {
		add("/" + n)
	}
	sort.Strings(out)
	return out
}

// Execute runs the named command. A literal command returns its text
// unchanged. A scripted command is called with args as a table of strings
// and its result is rendered as text: strings as is, nil as "", anything
// else as compact JSON.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]string) (string, error) {
	r.mu.RLock()
	def, ok := r.cmds[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	if r.metrics != nil {
		defer r.metrics.InvocationStarted(string(domain.InvocationCommand))()
	}
	start := time.Now()
	out, err := r.run(ctx, name, def, args)
	r.record(ctx, name, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("command %s: %w", name, err)
	}
	return out, nil
}

func (r *Registry) run(ctx context.Context, name string, def config.CommandDef, args map[string]string) (string, error) {
	if def.Kind == config.Literal {
		return def.Template, nil
	}
	if def.Entry == nil {
		return "", errors.New("no compiled entry")
	}

	s := script.NewSession(script.WithLogger(r.logger.Named("command." + name)))
	defer s.Close()

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := value.NewMap()
	for _, k := range keys {
		m.Set(k, value.String(args[k]))
	}
	in, err := script.ToGuest(s.L, value.FromMap(m))
	if err != nil {
		return "", err
	}

	ret, err := s.Call(ctx, s.Load(def.Entry), in)
	if err != nil {
		return "", err
	}
	return render(s.L, ret), nil
}

// render turns a command result into the text handed to the agent.
func render(L *lua.LState, lv lua.LValue) string {
	switch v := lv.(type) {
	case lua.LString:
		return string(v)
	case *lua.LNilType:
		return ""
	case lua.LBool, lua.LNumber, *lua.LTable:
		if hv, err := script.ToHost(v); err == nil {
			return hv.String()
		}
	}
	return L.ToStringMeta(lv).String()
}

func (r *Registry) record(ctx context.Context, name string, d time.Duration, err error) {
	entry := domain.AuditEntry{
		ID:       uuid.NewString(),
		Kind:     domain.InvocationCommand,
		Name:     name,
		Status:   "ok",
		Duration: d,
		At:       time.Now(),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
		r.logger.Warn("command failed", zap.String("command", name), zap.Error(err))
	} else {
		r.logger.Debug("command executed", zap.String("command", name), zap.Duration("duration", d))
	}

	if r.metrics != nil {
		r.metrics.ObserveInvocation(string(entry.Kind), name, d, err)
	}
	if r.audit != nil {
		if aerr := r.audit.LogInvocation(ctx, entry); aerr != nil {
			r.logger.Warn("audit log write failed", zap.Error(aerr))
		}
	}
}
