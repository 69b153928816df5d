// Package delivery guarantees that every enqueued delivery item eventually
// reaches its owner.
//
// Items are always persisted before any push is attempted, so a crash or a
// dead connection never loses a notification. Per-owner flushes are
// serialized to preserve enqueue order; an item is marked delivered only
// after the transport send returns success, which makes delivery
// at-least-once (a crash between send and mark can produce a rare
// duplicate, accepted over loss).
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/registry"
	"github.com/perrymanuk/radbot-sub001/internal/store"
)

// Alerter is an optional out-of-band side channel (e.g. SMS push) that
// receives a best-effort copy of each enqueued item. No delivery guarantee
// attaches to it; failures are logged and dropped.
type Alerter interface {
	Notify(ctx context.Context, ownerID, payload string) error
}

// DefaultAlertTimeout bounds each side-channel notification attempt.
const DefaultAlertTimeout = 10 * time.Second

// Queue buffers fired results per owner and flushes them to live
// connections, retaining undelivered items for reconnect-time flush.
type Queue struct {
	repo    store.DeliveryRepo
	reg     *registry.Registry
	alerter Alerter

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// NewQueue creates a delivery queue over the given repo and registry.
// alerter may be nil when no side channel is configured.
func NewQueue(repo store.DeliveryRepo, reg *registry.Registry, alerter Alerter) *Queue {
	return &Queue{
		repo:    repo,
		reg:     reg,
		alerter: alerter,
		owners:  make(map[string]*sync.Mutex),
	}
}

// ownerLock returns the mutex serializing flushes for one owner.
func (q *Queue) ownerLock(ownerID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.owners[ownerID]
	if !ok {
		l = &sync.Mutex{}
		q.owners[ownerID] = l
	}
	return l
}

// Enqueue persists a delivery item and then attempts an immediate push if
// the owner has a live connection. The item ID is returned either way.
func (q *Queue) Enqueue(ownerID, payload string, kind models.DeliveryKind) (string, error) {
	id, err := q.repo.EnqueueDelivery(ownerID, payload, kind)
	if err != nil {
		return "", fmt.Errorf("enqueue delivery item: %w", err)
	}
	slog.Debug("Queue.Enqueue: item persisted", "id", id, "ownerID", ownerID, "kind", kind)

	if q.alerter != nil {
		go q.alert(ownerID, payload)
	}

	if q.reg.Live(ownerID) {
		if err := q.Flush(ownerID); err != nil {
			// Not an enqueue failure: the item stays pending and the next
			// reconnect flush retries it.
			slog.Warn("Queue.Enqueue: immediate push failed", "ownerID", ownerID, "error", err)
		}
	}
	return id, nil
}

// Flush pushes all of the owner's pending items over the live transport in
// enqueue order, marking each delivered only after a successful send. The
// first send failure stops the flush; remaining items wait for the next
// reconnect rather than spinning against a dead connection.
func (q *Queue) Flush(ownerID string) error {
	l := q.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()

	send := q.reg.Sender(ownerID)
	if send == nil {
		slog.Debug("Queue.Flush: owner offline, backlog retained", "ownerID", ownerID)
		return nil
	}

	pending, err := q.repo.PendingDeliveries(ownerID)
	if err != nil {
		return fmt.Errorf("read pending deliveries: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	sent := 0
	for _, item := range pending {
		data, err := json.Marshal(models.Notification{
			ID:        item.ID,
			OwnerID:   item.OwnerID,
			Kind:      item.Kind,
			Payload:   item.Payload,
			CreatedAt: item.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal notification %s: %w", item.ID, err)
		}
		if err := send(data); err != nil {
			slog.Warn("Queue.Flush: transport send failed", "ownerID", ownerID, "itemID", item.ID, "sent", sent, "error", err)
			return fmt.Errorf("send delivery item %s: %w", item.ID, err)
		}
		if err := q.repo.MarkDelivered(item.ID); err != nil {
			return fmt.Errorf("mark delivered %s: %w", item.ID, err)
		}
		sent++
	}
	slog.Info("Queue.Flush: backlog flushed", "ownerID", ownerID, "sent", sent)
	return nil
}

// alert copies one payload to the side channel, best effort.
func (q *Queue) alert(ownerID, payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultAlertTimeout)
	defer cancel()
	if err := q.alerter.Notify(ctx, ownerID, payload); err != nil {
		slog.Warn("Queue.alert: side channel notification failed", "ownerID", ownerID, "error", err)
	}
}
