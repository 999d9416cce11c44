package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

// AppendEvent records one execution-log entry. The log is append-only;
// entries are only ever removed by retention pruning.
func (s *Store) AppendEvent(ctx context.Context, event *core.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO events (id, task_id, task_name, type, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, event.TaskID, event.TaskName, event.Type, event.Detail,
		event.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent entries, newest first. A non-empty
// taskID filters to one task.
func (s *Store) ListEvents(ctx context.Context, taskID string, limit, offset int) ([]*core.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, task_id, task_name, type, detail, created_at
		FROM events
	`
	args := []any{}
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var events []*core.Event
	for rows.Next() {
		var (
			event     core.Event
			createdAt string
		)
		if err := rows.Scan(&event.ID, &event.TaskID, &event.TaskName, &event.Type, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			event.CreatedAt = t
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// PruneEvents caps the log at the configured retention, dropping the
// oldest entries.
func (s *Store) PruneEvents(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			ORDER BY created_at DESC
			LIMIT -1 OFFSET ?
		)
	`, s.EventRetention)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	return nil
}

// ClearEvents drops the whole log. Exposed for the API's explicit
// clear-log operation.
func (s *Store) ClearEvents(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	return nil
}
