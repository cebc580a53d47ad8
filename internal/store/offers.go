package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/kmetija/internal/model"
)

var offerSelect = `SELECT o.id, o.product_id, o.buyer_id, o.quantity, o.price, o.message, o.status,
	o.created_at, o.updated_at, p.name, p.seller_id, ` + nameOf("bp", "bu") + `
	FROM offers o
	JOIN products p ON p.id = o.product_id
	JOIN users bu ON bu.id = o.buyer_id
	LEFT JOIN profiles bp ON bp.user_id = o.buyer_id`

func scanOffer(row interface{ Scan(...any) error }) (*model.Offer, error) {
	o := &model.Offer{}
	if err := row.Scan(&o.ID, &o.ProductID, &o.BuyerID, &o.Quantity, &o.Price, &o.Message, &o.Status,
		&o.CreatedAt, &o.UpdatedAt, &o.ProductName, &o.SellerID, &o.BuyerName); err != nil {
		return nil, err
	}
	return o, nil
}

// CreateOffer records a buyer's offer on an available product.
func CreateOffer(ctx context.Context, db *sql.DB, productID, buyerID int64, in model.OfferInput) (*model.Offer, error) {
	quantity := model.RoundQuantity(in.Quantity)
	if quantity <= 0 {
		return nil, invalid("quantity must be positive")
	}

	product, err := GetProduct(ctx, db, productID)
	if err != nil {
		return nil, err
	}
	if product == nil || product.DeletedAt != nil {
		return nil, notFound("product not found")
	}
	if product.SellerID == buyerID {
		return nil, invalid("cannot make an offer on your own product")
	}
	if product.Status != model.ProductStatusAvailable {
		return nil, conflict("product is not available")
	}
	if quantity > product.Quantity {
		return nil, invalid("only %g %s available", product.Quantity, product.Unit)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO offers (product_id, buyer_id, quantity, price, message) VALUES (?, ?, ?, ?, ?)`,
		productID, buyerID, quantity, in.Price, in.Message,
	)
	if err != nil {
		return nil, fmt.Errorf("creating offer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting offer id: %w", err)
	}
	return GetOffer(ctx, db, id)
}

// GetOffer returns an offer by ID.
func GetOffer(ctx context.Context, db *sql.DB, id int64) (*model.Offer, error) {
	o, err := scanOffer(db.QueryRowContext(ctx, offerSelect+` WHERE o.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting offer: %w", err)
	}
	return o, nil
}

// ListOffers returns offers the user made or received, newest first. Side
// is "buyer", "seller" or empty for both.
func ListOffers(ctx context.Context, db *sql.DB, userID int64, side string) ([]model.Offer, error) {
	query := offerSelect
	var args []any
	switch side {
	case "buyer":
		query += ` WHERE o.buyer_id = ?`
		args = append(args, userID)
	case "seller":
		query += ` WHERE p.seller_id = ?`
		args = append(args, userID)
	default:
		query += ` WHERE o.buyer_id = ? OR p.seller_id = ?`
		args = append(args, userID, userID)
	}
	query += ` ORDER BY o.created_at DESC, o.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning offer: %w", err)
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

// AcceptOffer accepts a pending offer on the seller's product and takes the
// offered quantity out of stock. The product is marked sold out when its
// stock reaches zero. Stock arithmetic is rounded to the stored precision.
func AcceptOffer(ctx context.Context, db *sql.DB, offerID, sellerID int64) (*model.Offer, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := scanOffer(tx.QueryRowContext(ctx, offerSelect+` WHERE o.id = ?`, offerID))
	if err == sql.ErrNoRows {
		return nil, notFound("offer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading offer: %w", err)
	}
	if o.SellerID != sellerID {
		return nil, forbidden("only the seller can accept an offer")
	}

	n, err := affected(tx.ExecContext(ctx,
		`UPDATE offers SET status = 'accepted', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'pending'`, offerID,
	))
	if err != nil {
		return nil, fmt.Errorf("accepting offer: %w", err)
	}
	if n == 0 {
		return nil, conflict("offer is %s", o.Status)
	}

	n, err = affected(tx.ExecContext(ctx,
		`UPDATE products SET
		     quantity = ROUND(quantity - ?, 3),
		     status = CASE WHEN ROUND(quantity - ?, 3) <= 0 THEN 'sold_out' ELSE status END,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL AND status = 'available' AND ROUND(quantity - ?, 3) >= 0`,
		o.Quantity, o.Quantity, o.ProductID, o.Quantity,
	))
	if err != nil {
		return nil, fmt.Errorf("updating product stock: %w", err)
	}
	if n == 0 {
		return nil, conflict("not enough stock left for this offer")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing offer acceptance: %w", err)
	}
	return GetOffer(ctx, db, offerID)
}

// RejectOffer lets the seller turn down a pending offer.
func RejectOffer(ctx context.Context, db *sql.DB, offerID, sellerID int64) (*model.Offer, error) {
	return closeOffer(ctx, db, offerID, sellerID, model.OfferStatusRejected)
}

// CancelOffer lets the buyer withdraw a pending offer.
func CancelOffer(ctx context.Context, db *sql.DB, offerID, buyerID int64) (*model.Offer, error) {
	return closeOffer(ctx, db, offerID, buyerID, model.OfferStatusCancelled)
}

func closeOffer(ctx context.Context, db *sql.DB, offerID, userID int64, status string) (*model.Offer, error) {
	o, err := GetOffer(ctx, db, offerID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, notFound("offer not found")
	}
	if status == model.OfferStatusRejected && o.SellerID != userID {
		return nil, forbidden("only the seller can reject an offer")
	}
	if status == model.OfferStatusCancelled && o.BuyerID != userID {
		return nil, forbidden("only the buyer can cancel an offer")
	}

	n, err := affected(db.ExecContext(ctx,
		`UPDATE offers SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'pending'`, status, offerID,
	))
	if err != nil {
		return nil, fmt.Errorf("updating offer: %w", err)
	}
	if n == 0 {
		return nil, conflict("offer is %s", o.Status)
	}
	return GetOffer(ctx, db, offerID)
}
