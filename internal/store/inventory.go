package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/kmetija/internal/model"
)

const inventoryColumns = `id, owner_id, name, category, quantity, unit, harvest_date, expiry_date,
	farm_name, location, price, image_url, notes, created_at, updated_at, deleted_at`

func scanInventoryItem(row interface{ Scan(...any) error }) (*model.InventoryItem, error) {
	item := &model.InventoryItem{}
	var harvest, expiry model.NullDate
	var price sql.NullFloat64
	if err := row.Scan(&item.ID, &item.OwnerID, &item.Name, &item.Category, &item.Quantity, &item.Unit,
		&harvest, &expiry, &item.FarmName, &item.Location, &price, &item.ImageURL, &item.Notes,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt); err != nil {
		return nil, err
	}
	item.HarvestDate = harvest.Ptr()
	item.ExpiryDate = expiry.Ptr()
	if price.Valid {
		item.Price = &price.Float64
	}
	return item, nil
}

// CreateInventoryItem creates an inventory item owned by ownerID.
func CreateInventoryItem(ctx context.Context, db *sql.DB, ownerID int64, in model.InventoryItemInput) (*model.InventoryItem, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO inventory_items
		     (owner_id, name, category, quantity, unit, harvest_date, expiry_date, farm_name, location, price, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, in.Name, in.Category, model.RoundQuantity(in.Quantity), in.Unit,
		model.DateArg(in.HarvestDate), model.DateArg(in.ExpiryDate),
		in.FarmName, in.Location, in.Price, in.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("creating inventory item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting inventory item id: %w", err)
	}

	return GetInventoryItem(ctx, db, id)
}

// GetInventoryItem returns an inventory item by ID, including soft-deleted ones.
func GetInventoryItem(ctx context.Context, db *sql.DB, id int64) (*model.InventoryItem, error) {
	item, err := scanInventoryItem(db.QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory item: %w", err)
	}
	return item, nil
}

// ListInventoryItems returns an owner's non-deleted items, optionally
// filtered by category.
func ListInventoryItems(ctx context.Context, db *sql.DB, ownerID int64, category string) ([]model.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_items
	          WHERE owner_id = ? AND deleted_at IS NULL`
	args := []any{ownerID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inventory items: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateInventoryItem replaces the editable fields of an owner's item. The
// expiry notice is re-armed only when the expiry date changes.
func UpdateInventoryItem(ctx context.Context, db *sql.DB, id, ownerID int64, in model.InventoryItemInput) (*model.InventoryItem, error) {
	expiry := model.DateArg(in.ExpiryDate)
	n, err := affected(db.ExecContext(ctx,
		`UPDATE inventory_items SET
		     name = ?, category = ?, quantity = ?, unit = ?, harvest_date = ?,
		     expiry_notified = CASE WHEN expiry_date IS ? THEN expiry_notified ELSE 0 END,
		     expiry_date = ?,
		     farm_name = ?, location = ?, price = ?, notes = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		in.Name, in.Category, model.RoundQuantity(in.Quantity), in.Unit, model.DateArg(in.HarvestDate),
		expiry, expiry,
		in.FarmName, in.Location, in.Price, in.Notes, id, ownerID,
	))
	if err != nil {
		return nil, fmt.Errorf("updating inventory item: %w", err)
	}
	if n == 0 {
		return nil, notFound("inventory item not found")
	}
	return GetInventoryItem(ctx, db, id)
}

// DeleteInventoryItem soft-deletes an owner's item.
func DeleteInventoryItem(ctx context.Context, db *sql.DB, id, ownerID int64) error {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE inventory_items SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		id, ownerID,
	))
	if err != nil {
		return fmt.Errorf("deleting inventory item: %w", err)
	}
	if n == 0 {
		return notFound("inventory item not found")
	}
	return nil
}

// SetInventoryItemImage sets the image URL of an owner's item.
func SetInventoryItemImage(ctx context.Context, db *sql.DB, id, ownerID int64, url string) error {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE inventory_items SET image_url = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		url, id, ownerID,
	))
	if err != nil {
		return fmt.Errorf("setting inventory item image: %w", err)
	}
	if n == 0 {
		return notFound("inventory item not found")
	}
	return nil
}

// ListItemForSale moves quantity of an inventory item onto the marketplace
// as a new product, in a single transaction.
func ListItemForSale(ctx context.Context, db *sql.DB, itemID, ownerID int64, in model.SellInput) (*model.Product, *model.InventoryItem, error) {
	quantity := model.RoundQuantity(in.Quantity)
	if quantity <= 0 {
		return nil, nil, invalid("quantity must be positive")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := scanInventoryItem(tx.QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`, itemID, ownerID,
	))
	if err == sql.ErrNoRows {
		return nil, nil, notFound("inventory item not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading inventory item: %w", err)
	}

	if item.Quantity < quantity {
		return nil, nil, invalid("insufficient quantity: have %g %s, need %g", item.Quantity, item.Unit, quantity)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE inventory_items SET quantity = ROUND(quantity - ?, 3), updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		quantity, itemID,
	); err != nil {
		return nil, nil, fmt.Errorf("updating inventory quantity: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO products
		     (seller_id, name, category, description, quantity, unit, price, harvest_date, expiry_date,
		      farm_name, location, image_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, item.Name, item.Category, in.Description, quantity, item.Unit, in.Price,
		model.DateArg(item.HarvestDate), model.DateArg(item.ExpiryDate),
		item.FarmName, item.Location, item.ImageURL,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing sale listing: %w", err)
	}

	productID, _ := result.LastInsertId()
	product, err := GetProduct(ctx, db, productID)
	if err != nil {
		return nil, nil, err
	}
	item, err = GetInventoryItem(ctx, db, itemID)
	if err != nil {
		return nil, nil, err
	}
	return product, item, nil
}

// ListExpiringItems returns items expiring on or before the given day that
// have not been reported yet.
func ListExpiringItems(ctx context.Context, db *sql.DB, before model.Date) ([]model.InventoryItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items
		 WHERE deleted_at IS NULL AND expiry_notified = 0 AND quantity > 0
		   AND expiry_date IS NOT NULL AND expiry_date <= ?
		 ORDER BY expiry_date, id`, before.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing expiring items: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// MarkExpiryNotified records that an item's expiry was reported.
func MarkExpiryNotified(ctx context.Context, db *sql.DB, id int64) error {
	if _, err := db.ExecContext(ctx,
		`UPDATE inventory_items SET expiry_notified = 1 WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("marking expiry notified: %w", err)
	}
	return nil
}
