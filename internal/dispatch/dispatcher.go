// Package dispatch turns claimed due records into delivery payloads and
// terminal statuses.
//
// The dispatcher never interprets task results beyond success/failure: the
// executor's output (including error text it chooses to return) is passed
// through verbatim, and every fired record produces exactly one delivery
// item so an owner is never left wondering whether something ran.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/delivery"
	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/scheduler"
	"github.com/perrymanuk/radbot-sub001/internal/store"
)

// TaskExecutor is the external collaborator (the agent/tool layer) that
// runs a scheduled task's prompt and returns a result string.
type TaskExecutor interface {
	Execute(ctx context.Context, prompt string) (string, error)
}

// Dispatcher executes claimed reminders and due scheduled tasks.
type Dispatcher struct {
	store    store.Store
	queue    *delivery.Queue
	executor TaskExecutor
}

// NewDispatcher creates a dispatcher over the given store, queue, and
// executor collaborator.
func NewDispatcher(st store.Store, queue *delivery.Queue, executor TaskExecutor) *Dispatcher {
	return &Dispatcher{store: st, queue: queue, executor: executor}
}

// FireReminder delivers a claimed reminder: its message becomes the payload
// verbatim. The delivery item is enqueued before the reminder is completed,
// so a crash between the two re-fires the reminder (a possible duplicate)
// rather than dropping the message.
func (d *Dispatcher) FireReminder(r models.Reminder) {
	if _, err := d.queue.Enqueue(r.OwnerID, r.Message, models.DeliveryKindReminder); err != nil {
		// Leave the reminder in firing; stale-claim recovery re-fires it.
		slog.Error("Dispatcher.FireReminder: enqueue failed", "id", r.ID, "ownerID", r.OwnerID, "error", err)
		return
	}
	if err := d.store.CompleteReminder(r.ID); err != nil {
		slog.Error("Dispatcher.FireReminder: complete failed", "id", r.ID, "error", err)
		return
	}
	slog.Info("Dispatcher.FireReminder: reminder fired", "id", r.ID, "ownerID", r.OwnerID)
}

// BeginTaskRun records a due task's run synchronously: it advances
// next_run_at past now (so the same instant never re-fires) and stamps
// last_run_at in the same store operation. Returns false when the task
// should not execute, e.g. its cron expression can no longer be evaluated,
// in which case the task is disabled and the owner is told why.
func (d *Dispatcher) BeginTaskRun(task models.ScheduledTask, now time.Time) bool {
	next, err := scheduler.Next(task.CronExpr, now)
	if err != nil {
		// Broken expression: disable instead of looping forever, and surface
		// the reason to the owner as a one-time delivery item.
		slog.Error("Dispatcher.BeginTaskRun: cron evaluation failed, disabling task", "id", task.ID, "expr", task.CronExpr, "error", err)
		if derr := d.store.SetTaskEnabled(task.ID, false); derr != nil {
			slog.Error("Dispatcher.BeginTaskRun: disable failed", "id", task.ID, "error", derr)
		}
		notice := fmt.Sprintf("Scheduled task %q was disabled: its schedule %q could not be evaluated (%v).", task.Name, task.CronExpr, err)
		if _, qerr := d.queue.Enqueue(task.OwnerID, notice, models.DeliveryKindTaskError); qerr != nil {
			slog.Error("Dispatcher.BeginTaskRun: disable notice enqueue failed", "id", task.ID, "error", qerr)
		}
		return false
	}

	if err := d.store.RecordTaskRun(task.ID, now, next); err != nil {
		slog.Error("Dispatcher.BeginTaskRun: record run failed", "id", task.ID, "error", err)
		return false
	}
	slog.Debug("Dispatcher.BeginTaskRun: run recorded", "id", task.ID, "nextRunAt", next)
	return true
}

// ExecuteTask runs the task's prompt through the executor and enqueues
// whatever comes back. Execution is unconditional on connection liveness;
// only delivery is gated by it. An executor error or panic becomes a
// failure-notice payload, so a broken downstream action still produces a
// delivery item for the owner.
func (d *Dispatcher) ExecuteTask(ctx context.Context, task models.ScheduledTask) {
	payload, kind := d.runExecutor(ctx, task)
	if _, err := d.queue.Enqueue(task.OwnerID, payload, kind); err != nil {
		slog.Error("Dispatcher.ExecuteTask: enqueue failed", "id", task.ID, "ownerID", task.OwnerID, "error", err)
		return
	}
	slog.Info("Dispatcher.ExecuteTask: task run delivered", "id", task.ID, "ownerID", task.OwnerID, "kind", kind)
}

func (d *Dispatcher) runExecutor(ctx context.Context, task models.ScheduledTask) (payload string, kind models.DeliveryKind) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher.runExecutor: executor panicked", "id", task.ID, "panic", r)
			payload = fmt.Sprintf("Scheduled task %q failed: internal error in task execution.", task.Name)
			kind = models.DeliveryKindTaskError
		}
	}()

	result, err := d.executor.Execute(ctx, task.Prompt)
	if err != nil {
		slog.Error("Dispatcher.runExecutor: executor failed", "id", task.ID, "error", err)
		return fmt.Sprintf("Scheduled task %q failed: %v", task.Name, err), models.DeliveryKindTaskError
	}
	return result, models.DeliveryKindTaskResult
}
