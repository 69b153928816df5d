package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/util"
)

const taskColumns = "id, owner_id, name, cron_expr, prompt, enabled, next_run_at, last_run_at, created_at"

func (s *SQLiteStore) CreateTask(ownerID, name, cronExpr, prompt string, nextRunAt time.Time) (string, error) {
	if err := models.ValidateTaskInput(ownerID, name, prompt); err != nil {
		return "", err
	}

	id := util.GenerateTaskID()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO scheduled_tasks (id, owner_id, name, cron_expr, prompt, enabled, next_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		id, ownerID, name, cronExpr, prompt, nextRunAt.UTC(), now,
	)
	if err != nil {
		return "", fmt.Errorf("create task failed: %w", err)
	}
	slog.Debug("SQLiteStore.CreateTask", "id", id, "ownerID", ownerID, "name", name, "nextRunAt", nextRunAt.UTC())
	return id, nil
}

func (s *SQLiteStore) GetTask(id string) (*models.ScheduledTask, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task failed: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) ListTasks(ownerID string) ([]models.ScheduledTask, error) {
	rows, err := s.db.Query(
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE owner_id = ? ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks query failed: %w", err)
	}
	return collectTasks(rows)
}

func (s *SQLiteStore) DeleteTask(id string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task failed: %w", err)
	}
	n, _ := result.RowsAffected()
	slog.Debug("SQLiteStore.DeleteTask", "id", id, "deleted", n == 1)
	return n == 1, nil
}

func (s *SQLiteStore) SetTaskEnabled(id string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE scheduled_tasks SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("set task enabled failed: %w", err)
	}
	slog.Debug("SQLiteStore.SetTaskEnabled", "id", id, "enabled", enabled)
	return nil
}

func (s *SQLiteStore) DueTasks(now time.Time) ([]models.ScheduledTask, error) {
	rows, err := s.db.Query(
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE enabled = 1 AND next_run_at <= ? ORDER BY next_run_at ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("due tasks query failed: %w", err)
	}
	return collectTasks(rows)
}

func (s *SQLiteStore) RecordTaskRun(id string, ranAt, nextRunAt time.Time) error {
	// Single statement keeps last_run_at and next_run_at in step; no reader
	// can observe a run recorded with a stale next occurrence.
	_, err := s.db.Exec(
		`UPDATE scheduled_tasks SET last_run_at = ?, next_run_at = ? WHERE id = ?`,
		ranAt.UTC(), nextRunAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("record task run failed: %w", err)
	}
	slog.Debug("SQLiteStore.RecordTaskRun", "id", id, "ranAt", ranAt.UTC(), "nextRunAt", nextRunAt.UTC())
	return nil
}
