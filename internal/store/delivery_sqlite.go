package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/util"
)

const deliveryColumns = "id, owner_id, payload, kind, delivered, created_at, delivered_at"

func (s *SQLiteStore) EnqueueDelivery(ownerID, payload string, kind models.DeliveryKind) (string, error) {
	if ownerID == "" {
		return "", models.ErrEmptyOwner
	}

	id := util.GenerateDeliveryID()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO delivery_items (id, owner_id, payload, kind, delivered, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		id, ownerID, payload, kind, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue delivery failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueDelivery", "id", id, "ownerID", ownerID, "kind", kind)
	return id, nil
}

func (s *SQLiteStore) PendingDeliveries(ownerID string) ([]models.DeliveryItem, error) {
	// rowid gives insertion order even when created_at collides within a tick.
	rows, err := s.db.Query(
		`SELECT `+deliveryColumns+` FROM delivery_items
		 WHERE owner_id = ? AND delivered = 0 ORDER BY created_at ASC, rowid ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("pending deliveries query failed: %w", err)
	}
	return collectDeliveries(rows)
}

func (s *SQLiteStore) MarkDelivered(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE delivery_items SET delivered = 1, delivered_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark delivered failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PruneDelivered(olderThan time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM delivery_items WHERE delivered = 1 AND delivered_at < ?`,
		olderThan.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune delivered failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.PruneDelivered", "pruned", n)
	}
	return int(n), nil
}
