package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/util"
)

const reminderColumns = "id, owner_id, message, fire_at, status, created_at, completed_at"

func (s *SQLiteStore) CreateReminder(ownerID, message string, fireAt time.Time) (string, error) {
	now := time.Now().UTC()
	if err := models.ValidateReminderInput(ownerID, message, fireAt, now); err != nil {
		return "", err
	}

	id := util.GenerateReminderID()
	_, err := s.db.Exec(
		`INSERT INTO reminders (id, owner_id, message, fire_at, status, created_at)
		 VALUES (?, ?, ?, ?, 'pending', ?)`,
		id, ownerID, message, fireAt.UTC(), now,
	)
	if err != nil {
		return "", fmt.Errorf("create reminder failed: %w", err)
	}
	slog.Debug("SQLiteStore.CreateReminder", "id", id, "ownerID", ownerID, "fireAt", fireAt.UTC())
	return id, nil
}

func (s *SQLiteStore) GetReminder(id string) (*models.Reminder, error) {
	row := s.db.QueryRow(
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id,
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

func (s *SQLiteStore) ListReminders(ownerID string, status models.ReminderStatus) ([]models.Reminder, error) {
	if status != "" && !models.IsValidReminderStatus(status) {
		return nil, models.ErrInvalidStatus
	}

	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(
			`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = ? ORDER BY fire_at ASC`,
			ownerID,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = ? AND status = ? ORDER BY fire_at ASC`,
			ownerID, status,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list reminders query failed: %w", err)
	}
	return collectReminders(rows)
}

func (s *SQLiteStore) CancelReminder(id string) (bool, error) {
	// Conditional update: a reminder that already left pending (claimed by a
	// concurrent poll, completed, or cancelled) is not touched. Cancelling a
	// record already firing races the dispatcher and is best-effort only.
	result, err := s.db.Exec(
		`UPDATE reminders SET status = 'cancelled' WHERE id = ? AND status = 'pending'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("cancel reminder failed: %w", err)
	}
	n, _ := result.RowsAffected()
	slog.Debug("SQLiteStore.CancelReminder", "id", id, "cancelled", n == 1)
	return n == 1, nil
}

func (s *SQLiteStore) ClaimDueReminders(now time.Time, limit int) ([]models.Reminder, error) {
	// Single statement: selection and transition to firing happen atomically,
	// so concurrent claimers never return the same record. The status guard
	// in the subquery also keeps concurrently cancelled records out.
	rows, err := s.db.Query(
		`UPDATE reminders SET status = 'firing'
		 WHERE id IN (
		     SELECT id FROM reminders
		     WHERE status = 'pending' AND fire_at <= ? ORDER BY fire_at ASC LIMIT ?
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
		slog.Debug("SQLiteStore.ClaimDueReminders", "claimed", len(claimed))
	}
	return claimed, nil
}

func (s *SQLiteStore) CompleteReminder(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE reminders SET status = 'completed', completed_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("complete reminder failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleFiring(staleBefore time.Time) (int, error) {
	// A reminder stuck in firing means the process died between claim and
	// completion; re-fire it rather than lose it (at-least-once).
	result, err := s.db.Exec(
		`UPDATE reminders SET status = 'pending' WHERE status = 'firing' AND fire_at < ?`,
		staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale firing failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleFiring", "requeued", n)
	}
	return int(n), nil
}
