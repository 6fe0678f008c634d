// Package store persists the invocation audit log and snapshots of the
// tool registry in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kota/internal/domain"
	"kota/internal/value"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.AuditLogger using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ domain.AuditLogger = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// LogInvocation records one tool or command invocation.
func (s *SQLiteStore) LogInvocation(ctx context.Context, e domain.AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, kind, name, status, stage, error, duration_us, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Name, e.Status, e.Stage, e.Error, e.Duration.Microseconds(), e.At.UTC(),
	)
	return err
}

// Recent returns the newest audit entries first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, status, stage, error, duration_us, created_at
		 FROM audit_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var kind string
		var us int64
		if err := rows.Scan(&e.ID, &kind, &e.Name, &e.Status, &e.Stage, &e.Error, &us, &e.At); err != nil {
			return nil, err
		}
		e.Kind = domain.InvocationKind(kind)
		e.Duration = time.Duration(us) * time.Microsecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats counts audit entries per status.
func (s *SQLiteStore) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM audit_log GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

// SnapshotDefinitions replaces the stored tool definitions with defs.
func (s *SQLiteStore) SnapshotDefinitions(ctx context.Context, defs []domain.ToolDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_definitions`); err != nil {
		return err
	}
	now := time.Now().UTC()
	for i, d := range defs {
		params, err := json.Marshal(d.Parameters)
		if err != nil {
			return fmt.Errorf("encode parameters of %s: %w", d.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tool_definitions (name, position, description, parameters, snapshot_at)
			 VALUES (?, ?, ?, ?, ?)`,
			d.Name, i, d.Description, string(params), now,
		); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("tool definitions snapshot saved", zap.Int("tools", len(defs)))
	return nil
}

// Definitions returns the last snapshot in registry order.
func (s *SQLiteStore) Definitions(ctx context.Context) ([]domain.ToolDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, parameters FROM tool_definitions ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []domain.ToolDefinition
	for rows.Next() {
		var d domain.ToolDefinition
		var params string
		if err := rows.Scan(&d.Name, &d.Description, &params); err != nil {
			return nil, err
		}
		if d.Parameters, err = value.Parse([]byte(params)); err != nil {
			return nil, fmt.Errorf("decode parameters of %s: %w", d.Name, err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
