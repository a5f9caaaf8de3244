package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wolfishy/nexus-cli/internal/log"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist. The special path ":memory:" opens a private
// in-memory database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := CheckLocalFilesystem(path); err != nil {
			if !errors.Is(err, ErrFilesystemUnknown) {
				return nil, err
			}
			log.WithComponent("storage").Debug("skipping filesystem check", "path", path, "error", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS failure_report (
  id            TEXT PRIMARY KEY,
  task_id       TEXT NOT NULL,
  program_id    TEXT NOT NULL,
  task_type     TEXT NOT NULL,
  input_index   INTEGER NOT NULL,
  kind          TEXT NOT NULL,
  message       TEXT NOT NULL,
  environment   TEXT NOT NULL,
  client_id     TEXT NOT NULL,
  task_snapshot JSON,
  created_at    TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS failure_report_created_at_idx ON failure_report(created_at);`,
		`CREATE INDEX IF NOT EXISTS failure_report_task_id_idx ON failure_report(task_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
