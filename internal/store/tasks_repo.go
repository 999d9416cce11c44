package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

const taskColumns = `id, name, target, trigger_kind, trigger_at, trigger_minute, trigger_hour, trigger_weekday,
	enabled, paused, aggressive, wake_lead_minutes, sleep_after, last_run_at, next_run_at, created_at, updated_at`

func (s *Store) InsertTask(ctx context.Context, task *core.Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Name, task.Target, task.Trigger.Kind, nullableTime(task.Trigger.At),
		task.Trigger.Minute, task.Trigger.Hour, int(task.Trigger.Weekday),
		boolInt(task.Enabled), boolInt(task.Paused), boolInt(task.Aggressive),
		task.Wake.LeadMinutes, boolInt(task.SleepAfter),
		nullableTime(task.LastRunAt), nullableTime(task.NextRunAt),
		task.CreatedAt.Format(time.RFC3339Nano), task.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *core.Task) error {
	task.UpdatedAt = time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET name = ?, target = ?, trigger_kind = ?, trigger_at = ?, trigger_minute = ?, trigger_hour = ?,
			trigger_weekday = ?, enabled = ?, paused = ?, aggressive = ?, wake_lead_minutes = ?,
			sleep_after = ?, last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?
	`, task.Name, task.Target, task.Trigger.Kind, nullableTime(task.Trigger.At),
		task.Trigger.Minute, task.Trigger.Hour, int(task.Trigger.Weekday),
		boolInt(task.Enabled), boolInt(task.Paused), boolInt(task.Aggressive),
		task.Wake.LeadMinutes, boolInt(task.SleepAfter),
		nullableTime(task.LastRunAt), nullableTime(task.NextRunAt),
		task.UpdatedAt.Format(time.RFC3339Nano), task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res, core.ErrTaskNotFound)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(res, core.ErrTaskNotFound)
}

func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*core.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTaskRunInfo persists the scheduling-derived fields the engine owns.
func (s *Store) UpdateTaskRunInfo(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time, enabled bool) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET last_run_at = ?, next_run_at = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, nullableTime(lastRunAt), nullableTime(nextRunAt), boolInt(enabled),
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update task run info: %w", err)
	}
	return requireRow(res, core.ErrTaskNotFound)
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.Task, error) {
	var (
		id         string
		name       string
		target     string
		kind       string
		triggerAt  sql.NullString
		minute     int
		hour       int
		weekday    int
		enabled    int
		paused     int
		aggressive int
		wakeLead   int
		sleepAfter int
		lastRun    sql.NullString
		nextRun    sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := scanner.Scan(&id, &name, &target, &kind, &triggerAt, &minute, &hour, &weekday,
		&enabled, &paused, &aggressive, &wakeLead, &sleepAfter, &lastRun, &nextRun, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task := &core.Task{
		ID:     id,
		Name:   name,
		Target: target,
		Trigger: core.Trigger{
			Kind:    core.TriggerKind(kind),
			Minute:  minute,
			Hour:    hour,
			Weekday: time.Weekday(weekday),
		},
		Enabled:    enabled != 0,
		Paused:     paused != 0,
		Aggressive: aggressive != 0,
		Wake:       core.WakePolicy{LeadMinutes: wakeLead},
		SleepAfter: sleepAfter != 0,
	}
	task.Trigger.At = parseNullTime(triggerAt)
	task.LastRunAt = parseNullTime(lastRun)
	task.NextRunAt = parseNullTime(nextRun)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		task.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		task.UpdatedAt = t
	}
	return task, nil
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, missing error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return missing
	}
	return nil
}
