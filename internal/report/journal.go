// Package report delivers verification failure reports: durably to a SQLite
// journal, live to the events hub, or to several sinks at once.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfishy/nexus-cli/internal/prover"
	"github.com/wolfishy/nexus-cli/internal/task"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is a stored failure report.
type Entry struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	ProgramID   string         `json:"program_id"`
	TaskType    string         `json:"task_type"`
	InputIndex  int            `json:"input_index"`
	Kind        string         `json:"kind"`
	Message     string         `json:"message"`
	Environment string         `json:"environment"`
	ClientID    string         `json:"client_id"`
	Task        *task.Document `json:"task,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Journal persists failure reports to the failure_report table.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// NewJournal returns a Journal backed by db. The schema must already exist
// (see storage.OpenSQLite).
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Report implements prover.Reporter.
func (j *Journal) Report(ctx context.Context, r prover.FailureReport) error {
	if r.Task == nil {
		return fmt.Errorf("failure report has no task")
	}

	snapshot, err := json.Marshal(task.DocumentOf(r.Task))
	if err != nil {
		return fmt.Errorf("marshal task snapshot: %w", err)
	}
	at := r.At
	if at.IsZero() {
		at = j.now()
	}

	_, err = j.db.ExecContext(ctx, `
INSERT INTO failure_report(
  id, task_id, program_id, task_type, input_index, kind, message, environment, client_id, task_snapshot, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), r.Task.ID, r.Task.ProgramID, r.Task.Type.String(), r.InputIndex, r.Kind.String(),
		r.Message, r.Environment.String(), r.ClientID, string(snapshot), at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert failure_report: %w", err)
	}
	return nil
}

// List returns up to limit reports, newest first. A limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
SELECT id, task_id, program_id, task_type, input_index, kind, message, environment, client_id, task_snapshot, created_at
FROM failure_report
ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("query failure_report: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			snapshot  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.ProgramID, &e.TaskType, &e.InputIndex, &e.Kind,
			&e.Message, &e.Environment, &e.ClientID, &snapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("scan failure_report: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", e.ID, err)
		}
		if snapshot.Valid && snapshot.String != "" {
			var doc task.Document
			if err := json.Unmarshal([]byte(snapshot.String), &doc); err != nil {
				return nil, fmt.Errorf("decode task snapshot for %s: %w", e.ID, err)
			}
			e.Task = &doc
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure_report: %w", err)
	}
	return out, nil
}

// Multi delivers each report to every reporter. All reporters are called even
// if some fail; their errors are joined.
type Multi []prover.Reporter

// Report implements prover.Reporter.
func (m Multi) Report(ctx context.Context, r prover.FailureReport) error {
	var errs []error
	for _, rep := range m {
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
