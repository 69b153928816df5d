// Package store provides storage backends for the radbot reminder core.
//
// The store is the single source of truth for reminders, scheduled tasks,
// and delivery items. All status transitions happen through its methods;
// no other component mutates persisted state. SQLite and PostgreSQL
// backends are provided, selected by DSN at startup.
package store

import (
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
)

// ReminderRepo defines persistence for one-shot reminders.
type ReminderRepo interface {
	// CreateReminder validates and inserts a new pending reminder, returning
	// its generated ID. Fire times are normalized to UTC on write. Returns a
	// validation error (models.ErrPastFireTime etc.) without persisting
	// anything when the input is malformed.
	CreateReminder(ownerID, message string, fireAt time.Time) (string, error)

	// GetReminder retrieves a single reminder by ID, or nil if absent.
	GetReminder(id string) (*models.Reminder, error)

	// ListReminders returns the owner's reminders, optionally filtered by
	// status (empty filter returns all), ordered by fire time.
	ListReminders(ownerID string, status models.ReminderStatus) ([]models.Reminder, error)

	// CancelReminder transitions a pending reminder to cancelled. Returns
	// false without error when the reminder is already firing, completed,
	// or cancelled (cancel is a no-op once the record left pending).
	CancelReminder(id string) (bool, error)

	// ClaimDueReminders atomically transitions up to limit pending reminders
	// with fire_at <= now into the firing state and returns them. Under
	// concurrent invocation each due reminder appears in exactly one caller's
	// result set.
	ClaimDueReminders(now time.Time, limit int) ([]models.Reminder, error)

	// CompleteReminder marks a firing reminder completed.
	CompleteReminder(id string) error

	// RequeueStaleFiring resets reminders stuck in firing since before
	// staleBefore back to pending (crash recovery). Returns the count reset.
	RequeueStaleFiring(staleBefore time.Time) (int, error)
}

// TaskRepo defines persistence for recurring scheduled tasks.
type TaskRepo interface {
	// CreateTask inserts a new enabled task with the given precomputed first
	// run time, returning its generated ID.
	CreateTask(ownerID, name, cronExpr, prompt string, nextRunAt time.Time) (string, error)

	// GetTask retrieves a single task by ID, or nil if absent.
	GetTask(id string) (*models.ScheduledTask, error)

	// ListTasks returns the owner's tasks ordered by creation time.
	ListTasks(ownerID string) ([]models.ScheduledTask, error)

	// DeleteTask removes a task. Returns false when no such task existed.
	DeleteTask(id string) (bool, error)

	// SetTaskEnabled flips a task's enabled flag.
	SetTaskEnabled(id string, enabled bool) error

	// DueTasks returns all enabled tasks whose next_run_at <= now.
	DueTasks(now time.Time) ([]models.ScheduledTask, error)

	// RecordTaskRun updates last_run_at and next_run_at in a single atomic
	// step, so no reader ever observes a stale next_run_at after a run.
	RecordTaskRun(id string, ranAt, nextRunAt time.Time) error
}

// DeliveryRepo defines persistence for owner-addressed delivery items.
type DeliveryRepo interface {
	// EnqueueDelivery inserts a new undelivered item, returning its ID.
	EnqueueDelivery(ownerID, payload string, kind models.DeliveryKind) (string, error)

	// PendingDeliveries returns the owner's undelivered items in enqueue order.
	PendingDeliveries(ownerID string) ([]models.DeliveryItem, error)

	// MarkDelivered records a confirmed transport send for an item.
	MarkDelivered(id string) error

	// PruneDelivered removes delivered items older than the given time,
	// returning the count removed.
	PruneDelivered(olderThan time.Time) (int, error)
}

// Store combines all repositories over one backing database.
type Store interface {
	ReminderRepo
	TaskRepo
	DeliveryRepo
	Close() error
}
