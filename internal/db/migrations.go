package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: lookup indexes for the per-user list views.
	`CREATE INDEX IF NOT EXISTS idx_inventory_items_owner
	     ON inventory_items(owner_id) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_products_seller
	     ON products(seller_id) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_equipment_owner
	     ON equipment(owner_id) WHERE deleted_at IS NULL`,

	// Migration 2: conversation and notification scans.
	`CREATE INDEX IF NOT EXISTS idx_messages_pair
	     ON messages(sender_id, recipient_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user
	     ON notifications(user_id, is_read, id)`,
	`CREATE INDEX IF NOT EXISTS idx_lending_messages_request
	     ON lending_messages(request_id, id)`,

	// Migration 3: quantities are kept to three decimal places.
	`UPDATE inventory_items SET quantity = ROUND(quantity, 3) WHERE quantity != ROUND(quantity, 3)`,
	`UPDATE products SET quantity = ROUND(quantity, 3) WHERE quantity != ROUND(quantity, 3)`,
	`UPDATE products SET status = 'sold_out'
	     WHERE status = 'available' AND quantity <= 0 AND deleted_at IS NULL`,
}

// Migrate applies the migration list.
func Migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
