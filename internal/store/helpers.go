package store

import (
	"database/sql"
	"fmt"

	"github.com/perrymanuk/radbot-sub001/internal/models"
)

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanReminder scans a Reminder from a row or rows cursor.
func scanReminder(sc scanner) (models.Reminder, error) {
	var r models.Reminder
	var completedAt sql.NullTime
	err := sc.Scan(&r.ID, &r.OwnerID, &r.Message, &r.FireAt, &r.Status, &r.CreatedAt, &completedAt)
	if err != nil {
		return r, err
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	r.FireAt = r.FireAt.UTC()
	return r, nil
}

// scanTask scans a ScheduledTask from a row or rows cursor.
func scanTask(sc scanner) (models.ScheduledTask, error) {
	var t models.ScheduledTask
	var lastRunAt sql.NullTime
	err := sc.Scan(&t.ID, &t.OwnerID, &t.Name, &t.CronExpr, &t.Prompt, &t.Enabled, &t.NextRunAt, &lastRunAt, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if lastRunAt.Valid {
		lr := lastRunAt.Time.UTC()
		t.LastRunAt = &lr
	}
	t.NextRunAt = t.NextRunAt.UTC()
	return t, nil
}

// scanDelivery scans a DeliveryItem from a row or rows cursor.
func scanDelivery(sc scanner) (models.DeliveryItem, error) {
	var d models.DeliveryItem
	var deliveredAt sql.NullTime
	err := sc.Scan(&d.ID, &d.OwnerID, &d.Payload, &d.Kind, &d.Delivered, &d.CreatedAt, &deliveredAt)
	if err != nil {
		return d, err
	}
	if deliveredAt.Valid {
		d.DeliveredAt = &deliveredAt.Time
	}
	return d, nil
}

// collectReminders drains a rows cursor into a slice.
func collectReminders(rows *sql.Rows) ([]models.Reminder, error) {
	defer rows.Close()
	var out []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminder rows iteration failed: %w", err)
	}
	return out, nil
}

// collectTasks drains a rows cursor into a slice.
func collectTasks(rows *sql.Rows) ([]models.ScheduledTask, error) {
	defer rows.Close()
	var out []models.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task failed: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task rows iteration failed: %w", err)
	}
	return out, nil
}

// collectDeliveries drains a rows cursor into a slice.
func collectDeliveries(rows *sql.Rows) ([]models.DeliveryItem, error) {
	defer rows.Close()
	var out []models.DeliveryItem
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery item failed: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delivery rows iteration failed: %w", err)
	}
	return out, nil
}
