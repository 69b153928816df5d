package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/util"
)

func (s *PostgresStore) CreateReminder(ownerID, message string, fireAt time.Time) (string, error) {
	now := time.Now().UTC()
	if err := models.ValidateReminderInput(ownerID, message, fireAt, now); err != nil {
		return "", err
	}

	id := util.GenerateReminderID()
	_, err := s.db.Exec(
		`INSERT INTO reminders (id, owner_id, message, fire_at, status, created_at)
		 VALUES ($1, $2, $3, $4, 'pending', $5)`,
		id, ownerID, message, fireAt.UTC(), now,
	)
	if err != nil {
		return "", fmt.Errorf("create reminder failed: %w", err)
	}
	slog.Debug("PostgresStore.CreateReminder", "id", id, "ownerID", ownerID, "fireAt", fireAt.UTC())
	return id, nil
}

func (s *PostgresStore) GetReminder(id string) (*models.Reminder, error) {
	row := s.db.QueryRow(
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id,
	)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder failed: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListReminders(ownerID string, status models.ReminderStatus) ([]models.Reminder, error) {
	if status != "" && !models.IsValidReminderStatus(status) {
		return nil, models.ErrInvalidStatus
	}

	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(
			`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = $1 ORDER BY fire_at ASC`,
			ownerID,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = $1 AND status = $2 ORDER BY fire_at ASC`,
			ownerID, status,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list reminders query failed: %w", err)
	}
	return collectReminders(rows)
}

func (s *PostgresStore) CancelReminder(id string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE reminders SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("cancel reminder failed: %w", err)
	}
	n, _ := result.RowsAffected()
	slog.Debug("PostgresStore.CancelReminder", "id", id, "cancelled", n == 1)
	return n == 1, nil
}

func (s *PostgresStore) ClaimDueReminders(now time.Time, limit int) ([]models.Reminder, error) {
	// SKIP LOCKED lets concurrent claimers partition the due set instead of
	// blocking on each other; each row is won by exactly one caller.
	rows, err := s.db.Query(
		`UPDATE reminders SET status = 'firing'
		 WHERE id IN (
		     SELECT id FROM reminders
		     WHERE status = 'pending' AND fire_at <= $1
		     ORDER BY fire_at ASC LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+reminderColumns,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders failed: %w", err)
	}
	claimed, err := collectReminders(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) > 0 {
		slog.Debug("PostgresStore.ClaimDueReminders", "claimed", len(claimed))
	}
	return claimed, nil
}

func (s *PostgresStore) CompleteReminder(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE reminders SET status = 'completed', completed_at = $1 WHERE id = $2`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("complete reminder failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleFiring(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE reminders SET status = 'pending' WHERE status = 'firing' AND fire_at < $1`,
		staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale firing failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleFiring", "requeued", n)
	}
	return int(n), nil
}
