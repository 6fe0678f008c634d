package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kota/internal/domain"
	"kota/internal/metrics"
	"kota/internal/script"
	"kota/internal/value"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry holds all available tools, native and scripted, in registration
// order. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string
	logger *zap.Logger

	audit   domain.AuditLogger
	metrics *metrics.Collector
}

// Option configures a Registry.
type Option func(*Registry)

// WithAudit records every invocation in a.
func WithAudit(a domain.AuditLogger) Option {
	return func(r *Registry) { r.audit = a }
}

// WithMetrics counts invocations in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = c }
}

func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds t. A tool already registered under the same name is
// replaced in place and keeps its listing position.
func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		r.logger.Info("tool replaced", zap.String("name", name))
	} else {
		r.order = append(r.order, name)
		r.logger.Debug("registered tool", zap.String("name", name))
	}
	r.tools[name] = t
	if r.metrics != nil {
		r.metrics.SetToolsRegistered(len(r.order))
	}
}

// Unregister removes name and reports whether it was registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		return false
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.metrics != nil {
		r.metrics.SetToolsRegistered(len(r.order))
	}
	r.logger.Debug("unregistered tool", zap.String("name", name))
	return true
}

func (r *Registry) Get(name string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns tool names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Describe returns the definition of one tool.
func (r *Registry) Describe(name string) (domain.ToolDefinition, error) {
	t, ok := r.Get(name)
	if !ok {
		return domain.ToolDefinition{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return domain.Describe(t), nil
}

// Definitions returns every tool definition in registration order.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, domain.Describe(r.tools[name]))
	}
	return defs
}

// Invoke runs the named tool. Unknown names fail with ErrNotFound; tool
// failures are returned unchanged.
func (r *Registry) Invoke(ctx context.Context, name string, args value.Value) (value.Value, error) {
	t, ok := r.Get(name)
	if !ok {
		return value.Null(), fmt.Errorf("%w: %s (available: %v)", ErrNotFound, name, r.List())
	}

	if r.metrics != nil {
		defer r.metrics.InvocationStarted(string(domain.InvocationTool))()
	}
	start := time.Now()
	out, err := t.Invoke(ctx, args)
	r.record(ctx, name, time.Since(start), err)
	return out, err
}

func (r *Registry) record(ctx context.Context, name string, d time.Duration, err error) {
	entry := domain.AuditEntry{
		ID:       uuid.NewString(),
		Kind:     domain.InvocationTool,
		Name:     name,
		Status:   "ok",
		Duration: d,
		At:       time.Now(),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
		var ie *InvokeError
		if errors.As(err, &ie) {
			entry.Stage = string(ie.Stage)
		}
		r.logger.Warn("tool invocation failed", zap.String("tool", name), zap.String("stage", entry.Stage), zap.Error(err))
	} else {
		r.logger.Debug("tool invoked", zap.String("tool", name), zap.Duration("duration", d))
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

// RegisterDescriptors wraps each descriptor in a LuaTool and registers it.
func (r *Registry) RegisterDescriptors(descs []Descriptor, logger *zap.Logger, opts ...script.Option) {
	for _, d := range descs {
		r.Register(NewLuaTool(d, logger, opts...))
	}
}
