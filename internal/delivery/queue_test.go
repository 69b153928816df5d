package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/registry"
	"github.com/perrymanuk/radbot-sub001/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "delivery_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(tempDir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// captureSender records pushed notifications and can be told to fail.
type captureSender struct {
	sent []models.Notification
	fail bool
}

func (c *captureSender) send(data []byte) error {
	if c.fail {
		return errors.New("connection gone")
	}
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	c.sent = append(c.sent, n)
	return nil
}

func register(reg *registry.Registry, owner, session string, send registry.SendFunc) {
	reg.Register(&registry.Handle{
		OwnerID:     owner,
		SessionID:   session,
		Send:        send,
		ConnectedAt: time.Now(),
	})
}

func TestEnqueuePushesWhenLive(t *testing.T) {
	s := newTestStore(t)
	reg := registry.New()
	q := NewQueue(s, reg, nil)

	cap := &captureSender{}
	register(reg, "owner1", "s1", cap.send)

	if _, err := q.Enqueue("owner1", "hello", models.DeliveryKindReminder); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if len(cap.sent) != 1 || cap.sent[0].Payload != "hello" {
		t.Fatalf("Expected immediate push, got %+v", cap.sent)
	}

	pending, err := s.PendingDeliveries("owner1")
	if err != nil {
		t.Fatalf("PendingDeliveries failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Item not marked delivered after successful push: %+v", pending)
	}
}

func TestEnqueueRetainsWhenOffline(t *testing.T) {
	s := newTestStore(t)
	reg := registry.New()
	q := NewQueue(s, reg, nil)

	if _, err := q.Enqueue("owner1", "queued while away", models.DeliveryKindTaskResult); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	pending, err := s.PendingDeliveries("owner1")
	if err != nil {
		t.Fatalf("PendingDeliveries failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 retained item, got %d", len(pending))
	}
}

func TestFlushOnReconnectDeliversInOrder(t *testing.T) {
	s := newTestStore(t)
	reg := registry.New()
	q := NewQueue(s, reg, nil)

	// Two firings while the owner is disconnected.
	if _, err := q.Enqueue("owner1", "first result", models.DeliveryKindTaskResult); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue("owner1", "second result", models.DeliveryKindTaskResult); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	cap := &captureSender{}
	register(reg, "owner1", "s1", cap.send)
	if err := q.Flush("owner1"); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if len(cap.sent) != 2 {
		t.Fatalf("Expected 2 delivered items, got %d", len(cap.sent))
	}
	if cap.sent[0].Payload != "first result" || cap.sent[1].Payload != "second result" {
		t.Errorf("Items delivered out of order: %+v", cap.sent)
	}

	// Flushing again with no new enqueues delivers nothing.
	if err := q.Flush("owner1"); err != nil {
		t.Fatalf("Second flush failed: %v", err)
	}
	if len(cap.sent) != 2 {
		t.Errorf("Second flush produced duplicates: %d items", len(cap.sent))
	}
}

func TestFlushStopsOnSendFailure(t *testing.T) {
	s := newTestStore(t)
	reg := registry.New()
	q := NewQueue(s, reg, nil)

	if _, err := q.Enqueue("owner1", "one", models.DeliveryKindReminder); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue("owner1", "two", models.DeliveryKindReminder); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	cap := &captureSender{fail: true}
	register(reg, "owner1", "s1", cap.send)
	if err := q.Flush("owner1"); err == nil {
		t.Fatal("Expected flush error on send failure")
	}

	// Both items remain pending for the next reconnect.
	pending, err := s.PendingDeliveries("owner1")
	if err != nil {
		t.Fatalf("PendingDeliveries failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("Expected both items retained after failed flush, got %d", len(pending))
	}

	// Reconnect with a working connection delivers the full backlog once.
	good := &captureSender{}
	register(reg, "owner1", "s2", good.send)
	if err := q.Flush("owner1"); err != nil {
		t.Fatalf("Flush after reconnect failed: %v", err)
	}
	if len(good.sent) != 2 {
		t.Errorf("Expected 2 items after reconnect, got %d", len(good.sent))
	}
}

func TestFlushOfflineIsNoop(t *testing.T) {
	s := newTestStore(t)
	reg := registry.New()
	q := NewQueue(s, reg, nil)

	if _, err := q.Enqueue("owner1", "waiting", models.DeliveryKindReminder); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Flush("owner1"); err != nil {
		t.Fatalf("Offline flush should not error: %v", err)
	}
}

// recordingAlerter captures side-channel notifications.
type recordingAlerter struct {
	ch chan string
}

func (a *recordingAlerter) Notify(ctx context.Context, ownerID, payload string) error {
	a.ch <- payload
	return nil
}

func TestEnqueueCopiesToAlerter(t *testing.T) {
	s := newTestStore(t)
	reg := registry.New()
	alerter := &recordingAlerter{ch: make(chan string, 1)}
	q := NewQueue(s, reg, alerter)

	if _, err := q.Enqueue("owner1", "ping", models.DeliveryKindReminder); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case payload := <-alerter.ch:
		if payload != "ping" {
			t.Errorf("Alerter received wrong payload: %q", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("Alerter never notified")
	}
}
