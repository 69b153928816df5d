package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/util"
)

func (s *PostgresStore) CreateTask(ownerID, name, cronExpr, prompt string, nextRunAt time.Time) (string, error) {
	if err := models.ValidateTaskInput(ownerID, name, prompt); err != nil {
		return "", err
	}

	id := util.GenerateTaskID()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO scheduled_tasks (id, owner_id, name, cron_expr, prompt, enabled, next_run_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)`,
		id, ownerID, name, cronExpr, prompt, nextRunAt.UTC(), now,
	)
	if err != nil {
		return "", fmt.Errorf("create task failed: %w", err)
	}
	slog.Debug("PostgresStore.CreateTask", "id", id, "ownerID", ownerID, "name", name, "nextRunAt", nextRunAt.UTC())
	return id, nil
}

func (s *PostgresStore) GetTask(id string) (*models.ScheduledTask, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task failed: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTasks(ownerID string) ([]models.ScheduledTask, error) {
	rows, err := s.db.Query(
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE owner_id = $1 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks query failed: %w", err)
	}
	return collectTasks(rows)
}

func (s *PostgresStore) DeleteTask(id string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete task failed: %w", err)
	}
	n, _ := result.RowsAffected()
	slog.Debug("PostgresStore.DeleteTask", "id", id, "deleted", n == 1)
	return n == 1, nil
}

func (s *PostgresStore) SetTaskEnabled(id string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE scheduled_tasks SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("set task enabled failed: %w", err)
	}
	slog.Debug("PostgresStore.SetTaskEnabled", "id", id, "enabled", enabled)
	return nil
}

func (s *PostgresStore) DueTasks(now time.Time) ([]models.ScheduledTask, error) {
	rows, err := s.db.Query(
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE enabled = TRUE AND next_run_at <= $1 ORDER BY next_run_at ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("due tasks query failed: %w", err)
	}
	return collectTasks(rows)
}

func (s *PostgresStore) RecordTaskRun(id string, ranAt, nextRunAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE scheduled_tasks SET last_run_at = $1, next_run_at = $2 WHERE id = $3`,
		ranAt.UTC(), nextRunAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("record task run failed: %w", err)
	}
	slog.Debug("PostgresStore.RecordTaskRun", "id", id, "ranAt", ranAt.UTC(), "nextRunAt", nextRunAt.UTC())
	return nil
}
