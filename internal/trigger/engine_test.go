package trigger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/delivery"
	"github.com/perrymanuk/radbot-sub001/internal/dispatch"
	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/registry"
	"github.com/perrymanuk/radbot-sub001/internal/store"
)

type stubExecutor struct {
	result string
}

func (e *stubExecutor) Execute(ctx context.Context, prompt string) (string, error) {
	return e.result, nil
}

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "trigger_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(tempDir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	q := delivery.NewQueue(s, registry.New(), nil)
	d := dispatch.NewDispatcher(s, q, &stubExecutor{result: "ran"})
	return NewEngine(s, d, 50*time.Millisecond), s
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestPollFiresPastDueReminder(t *testing.T) {
	e, s := newTestEngine(t)

	// Created already due, as with "remind me in 0 minutes".
	if _, err := s.CreateReminder("owner1", "it is time", time.Now()); err != nil {
		t.Fatalf("CreateReminder failed: %v", err)
	}

	e.poll(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		pending, err := s.PendingDeliveries("owner1")
		return err == nil && len(pending) == 1
	})

	pending, err := s.PendingDeliveries("owner1")
	if err != nil {
		t.Fatalf("PendingDeliveries failed: %v", err)
	}
	if pending[0].Payload != "it is time" {
		t.Errorf("Delivery payload mismatch: %q", pending[0].Payload)
	}

	completed, err := s.ListReminders("owner1", models.ReminderStatusCompleted)
	if err != nil {
		t.Fatalf("ListReminders failed: %v", err)
	}
	if len(completed) != 1 {
		t.Errorf("Reminder not completed after firing")
	}
}

func TestPollFiresReminderOnlyOnce(t *testing.T) {
	e, s := newTestEngine(t)

	if _, err := s.CreateReminder("owner1", "once", time.Now()); err != nil {
		t.Fatalf("CreateReminder failed: %v", err)
	}

	e.poll(context.Background())
	e.poll(context.Background())
	e.poll(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		pending, err := s.PendingDeliveries("owner1")
		return err == nil && len(pending) >= 1
	})
	// Give any erroneous duplicate dispatch a chance to land.
	time.Sleep(100 * time.Millisecond)

	pending, err := s.PendingDeliveries("owner1")
	if err != nil {
		t.Fatalf("PendingDeliveries failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected exactly one delivery item, got %d", len(pending))
	}
}

func TestPollRunsMissedTaskOnceOnRecovery(t *testing.T) {
	e, s := newTestEngine(t)

	// next_run_at long past, as after downtime: one catch-up run, then the
	// normal cadence resumes from now.
	id, err := s.CreateTask("owner1", "hourly", "0 * * * *", "check things", time.Now().Add(-3*time.Hour))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	now := time.Now()
	e.poll(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		pending, err := s.PendingDeliveries("owner1")
		return err == nil && len(pending) == 1
	})
	time.Sleep(100 * time.Millisecond)

	pending, err := s.PendingDeliveries("owner1")
	if err != nil {
		t.Fatalf("PendingDeliveries failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected one catch-up run, got %d delivery items", len(pending))
	}

	task, err := s.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !task.NextRunAt.After(now) {
		t.Errorf("NextRunAt %v not advanced past %v", task.NextRunAt, now)
	}

	// Another poll at the same wall-clock does not fire again.
	e.poll(context.Background())
	time.Sleep(100 * time.Millisecond)
	pending, err = s.PendingDeliveries("owner1")
	if err != nil {
		t.Fatalf("PendingDeliveries failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Missed task fired more than once: %d items", len(pending))
	}
}

func TestRecoverStaleRefiresOrphanedClaim(t *testing.T) {
	e, s := newTestEngine(t)

	if _, err := s.CreateReminder("owner1", "orphaned", time.Now().Add(-10*time.Minute)); err != nil {
		t.Fatalf("CreateReminder failed: %v", err)
	}
	// Claim and then "crash" before completing.
	if _, err := s.ClaimDueReminders(time.Now(), 10); err != nil {
		t.Fatalf("ClaimDueReminders failed: %v", err)
	}

	if err := e.RecoverStale(); err != nil {
		t.Fatalf("RecoverStale failed: %v", err)
	}

	e.poll(context.Background())
	waitFor(t, 2*time.Second, func() bool {
		pending, err := s.PendingDeliveries("owner1")
		return err == nil && len(pending) == 1
	})
}

func TestRunStopsOnContextCancel(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestCancelledReminderNeverFires(t *testing.T) {
	e, s := newTestEngine(t)

	id, err := s.CreateReminder("owner1", "nope", time.Now())
	if err != nil {
		t.Fatalf("CreateReminder failed: %v", err)
	}
	if ok, err := s.CancelReminder(id); err != nil || !ok {
		t.Fatalf("CancelReminder failed: ok=%v err=%v", ok, err)
	}

	e.poll(context.Background())
	time.Sleep(200 * time.Millisecond)

	pending, err := s.PendingDeliveries("owner1")
	if err != nil {
		t.Fatalf("PendingDeliveries failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Cancelled reminder produced a delivery: %+v", pending)
	}
}
