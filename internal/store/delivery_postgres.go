package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/util"
)

func (s *PostgresStore) EnqueueDelivery(ownerID, payload string, kind models.DeliveryKind) (string, error) {
	if ownerID == "" {
		return "", models.ErrEmptyOwner
	}

	id := util.GenerateDeliveryID()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO delivery_items (id, owner_id, payload, kind, delivered, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5)`,
		id, ownerID, payload, kind, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue delivery failed: %w", err)
	}
	slog.Debug("PostgresStore.EnqueueDelivery", "id", id, "ownerID", ownerID, "kind", kind)
	return id, nil
}

func (s *PostgresStore) PendingDeliveries(ownerID string) ([]models.DeliveryItem, error) {
	rows, err := s.db.Query(
		`SELECT `+deliveryColumns+` FROM delivery_items
		 WHERE owner_id = $1 AND delivered = FALSE ORDER BY seq ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("pending deliveries query failed: %w", err)
	}
	return collectDeliveries(rows)
}

func (s *PostgresStore) MarkDelivered(id string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE delivery_items SET delivered = TRUE, delivered_at = $1 WHERE id = $2`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark delivered failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PruneDelivered(olderThan time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM delivery_items WHERE delivered = TRUE AND delivered_at < $1`,
		olderThan.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune delivered failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.PruneDelivered", "pruned", n)
	}
	return int(n), nil
}
