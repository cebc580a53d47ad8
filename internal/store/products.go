package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/kmetija/internal/model"
)

var productColumns = `p.id, p.seller_id, p.name, p.category, p.description, p.quantity, p.unit, p.price,
	p.harvest_date, p.expiry_date, p.farm_name, p.location, p.image_url, p.status,
	p.created_at, p.updated_at, p.deleted_at, ` + nameOf("sp", "su") + ` AS seller_name`

const productJoins = `FROM products p
	JOIN users su ON su.id = p.seller_id
	LEFT JOIN profiles sp ON sp.user_id = p.seller_id`

func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	p := &model.Product{}
	var harvest, expiry model.NullDate
	if err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Category, &p.Description, &p.Quantity, &p.Unit, &p.Price,
		&harvest, &expiry, &p.FarmName, &p.Location, &p.ImageURL, &p.Status,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt, &p.SellerName); err != nil {
		return nil, err
	}
	p.HarvestDate = harvest.Ptr()
	p.ExpiryDate = expiry.Ptr()
	return p, nil
}

// ProductFilter narrows ListProducts. Zero values match everything except
// that an empty Status lists only available products.
type ProductFilter struct {
	SellerID int64
	Category string
	Query    string
	Status   string
}

// CreateProduct lists a product for sale.
func CreateProduct(ctx context.Context, db *sql.DB, sellerID int64, in model.ProductInput) (*model.Product, error) {
	status := in.Status
	if status == "" {
		status = model.ProductStatusAvailable
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO products
		     (seller_id, name, category, description, quantity, unit, price, harvest_date, expiry_date,
		      farm_name, location, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sellerID, in.Name, in.Category, in.Description, model.RoundQuantity(in.Quantity), in.Unit, in.Price,
		model.DateArg(in.HarvestDate), model.DateArg(in.ExpiryDate), in.FarmName, in.Location, status,
	)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting product id: %w", err)
	}

	return GetProduct(ctx, db, id)
}

// GetProduct returns a product by ID.
func GetProduct(ctx context.Context, db *sql.DB, id int64) (*model.Product, error) {
	p, err := scanProduct(db.QueryRowContext(ctx,
		`SELECT `+productColumns+` `+productJoins+` WHERE p.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// ListProducts returns non-deleted products matching the filter, newest first.
func ListProducts(ctx context.Context, db *sql.DB, f ProductFilter) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` ` + productJoins + ` WHERE p.deleted_at IS NULL`
	var args []any

	switch f.Status {
	case "":
		query += ` AND p.status = ?`
		args = append(args, model.ProductStatusAvailable)
	case "all":
	default:
		query += ` AND p.status = ?`
		args = append(args, f.Status)
	}
	if f.SellerID > 0 {
		query += ` AND p.seller_id = ?`
		args = append(args, f.SellerID)
	}
	if f.Category != "" {
		query += ` AND p.category = ?`
		args = append(args, f.Category)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		query += ` AND (p.name LIKE ? ESCAPE '\' OR p.description LIKE ? ESCAPE '\')`
		like := "%" + escapeLike(q) + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// UpdateProduct replaces the editable fields of a seller's product.
// An empty status keeps the current one.
func UpdateProduct(ctx context.Context, db *sql.DB, id, sellerID int64, in model.ProductInput) (*model.Product, error) {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE products SET
		     name = ?, category = ?, description = ?, quantity = ?, unit = ?, price = ?,
		     harvest_date = ?, expiry_date = ?, farm_name = ?, location = ?, status = COALESCE(NULLIF(?, ''), status),
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND seller_id = ? AND deleted_at IS NULL`,
		in.Name, in.Category, in.Description, model.RoundQuantity(in.Quantity), in.Unit, in.Price,
		model.DateArg(in.HarvestDate), model.DateArg(in.ExpiryDate), in.FarmName, in.Location, in.Status,
		id, sellerID,
	))
	if err != nil {
		return nil, fmt.Errorf("updating product: %w", err)
	}
	if n == 0 {
		return nil, notFound("product not found")
	}
	return GetProduct(ctx, db, id)
}

// DeleteProduct soft-deletes a seller's product and rejects its pending offers.
func DeleteProduct(ctx context.Context, db *sql.DB, id, sellerID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := affected(tx.ExecContext(ctx,
		`UPDATE products SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND seller_id = ? AND deleted_at IS NULL`,
		id, sellerID,
	))
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	if n == 0 {
		return notFound("product not found")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE offers SET status = 'rejected', updated_at = CURRENT_TIMESTAMP
		 WHERE product_id = ? AND status = 'pending'`, id,
	); err != nil {
		return fmt.Errorf("rejecting open offers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing product deletion: %w", err)
	}
	return nil
}

// SetProductImage sets the image URL of a seller's product.
func SetProductImage(ctx context.Context, db *sql.DB, id, sellerID int64, url string) error {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE products SET image_url = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND seller_id = ? AND deleted_at IS NULL`,
		url, id, sellerID,
	))
	if err != nil {
		return fmt.Errorf("setting product image: %w", err)
	}
	if n == 0 {
		return notFound("product not found")
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
