// Package models defines the core data structures for the radbot reminder
// and scheduled-task subsystem.
//
// It includes the persisted record types (reminders, scheduled tasks,
// delivery items), their status enums, and the validation errors shared
// across modules.
package models

import (
	"errors"
	"time"
)

// ReminderStatus represents the lifecycle state of a one-shot reminder.
type ReminderStatus string

const (
	// ReminderStatusPending means the reminder has not fired yet.
	ReminderStatusPending ReminderStatus = "pending"
	// ReminderStatusFiring is the transient claim state preventing double-dispatch.
	ReminderStatusFiring ReminderStatus = "firing"
	// ReminderStatusCompleted means the reminder fired and its delivery item was enqueued.
	ReminderStatusCompleted ReminderStatus = "completed"
	// ReminderStatusCancelled means the reminder was cancelled before firing.
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// IsValidReminderStatus checks if the given status is a known reminder status.
func IsValidReminderStatus(s ReminderStatus) bool {
	switch s {
	case ReminderStatusPending, ReminderStatusFiring, ReminderStatusCompleted, ReminderStatusCancelled:
		return true
	}
	return false
}

// Reminder represents a one-shot user-scheduled notification.
type Reminder struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Message     string         `json:"message"`
	FireAt      time.Time      `json:"fire_at"`
	Status      ReminderStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ScheduledTask represents a recurring cron-driven action whose result is
// delivered to its owner after each run.
type ScheduledTask struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Name      string     `json:"name"`
	CronExpr  string     `json:"cron_expr"`
	Prompt    string     `json:"prompt"`
	Enabled   bool       `json:"enabled"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DeliveryKind classifies the origin of a delivery item payload.
type DeliveryKind string

const (
	// DeliveryKindReminder carries a fired reminder's message verbatim.
	DeliveryKindReminder DeliveryKind = "reminder"
	// DeliveryKindTaskResult carries the result of a scheduled task run.
	DeliveryKindTaskResult DeliveryKind = "task_result"
	// DeliveryKindTaskError carries a failure notice for a scheduled task run.
	DeliveryKindTaskError DeliveryKind = "task_error"
)

// DeliveryItem is a queued, owner-addressed notification payload awaiting
// transport delivery. It is retained until a live connection for its owner
// acknowledges a successful send.
type DeliveryItem struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"owner_id"`
	Payload     string       `json:"payload"`
	Kind        DeliveryKind `json:"kind"`
	Delivered   bool         `json:"delivered"`
	CreatedAt   time.Time    `json:"created_at"`
	DeliveredAt *time.Time   `json:"delivered_at,omitempty"`
}

// Notification is the structured message handed to the transport layer for
// serialization. Wire framing is owned by the transport, not the core.
type Notification struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Kind      DeliveryKind `json:"kind"`
	Payload   string       `json:"payload"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for reminder messages
	MaxMessageLength = 4096
	// MaxPromptLength defines the maximum allowed length for task prompts
	MaxPromptLength = 8192
	// MaxTaskNameLength defines the maximum allowed length for task names
	MaxTaskNameLength = 200
	// PastFireGrace is how far in the past a fire time may resolve and still
	// be accepted (covers "remind me now" requests that arrive a moment late).
	PastFireGrace = time.Minute
)

// Error variables for better error handling and testability
var (
	ErrEmptyOwner      = errors.New("owner id cannot be empty")
	ErrEmptyMessage    = errors.New("reminder message cannot be empty")
	ErrMessageTooLong  = errors.New("reminder message exceeds maximum length")
	ErrPastFireTime    = errors.New("fire time resolves to the past")
	ErrEmptyTaskName   = errors.New("task name cannot be empty")
	ErrTaskNameTooLong = errors.New("task name exceeds maximum length")
	ErrEmptyPrompt     = errors.New("task prompt cannot be empty")
	ErrPromptTooLong   = errors.New("task prompt exceeds maximum length")
	ErrInvalidCron     = errors.New("invalid cron expression")
	ErrInvalidStatus   = errors.New("invalid status filter")
	ErrNotFound        = errors.New("record not found")
)

// ValidateReminderInput checks creation input for a one-shot reminder.
// The fire time is compared against now with PastFireGrace slack.
func ValidateReminderInput(ownerID, message string, fireAt, now time.Time) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}
	if message == "" {
		return ErrEmptyMessage
	}
	if len(message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if fireAt.Before(now.Add(-PastFireGrace)) {
		return ErrPastFireTime
	}
	return nil
}

// ValidateTaskInput checks creation input for a scheduled task. Cron
// expression validity is checked separately by the scheduler package.
func ValidateTaskInput(ownerID, name, prompt string) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}
	if name == "" {
		return ErrEmptyTaskName
	}
	if len(name) > MaxTaskNameLength {
		return ErrTaskNameTooLong
	}
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if len(prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	return nil
}
