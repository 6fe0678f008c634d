package domain

import (
	"context"
	"time"
)

type InvocationKind string

const (
	InvocationTool    InvocationKind = "tool"
	InvocationCommand InvocationKind = "command"
)

// AuditEntry records one tool or command invocation.
type AuditEntry struct {
	ID       string
	Kind     InvocationKind
	Name     string
	Status   string // ok | error
	Stage    string // failing pipeline stage, empty on success
	Error    string
	Duration time.Duration
	At       time.Time
}

// AuditLogger persists invocation records.
type AuditLogger interface {
	LogInvocation(ctx context.Context, entry AuditEntry) error
}
