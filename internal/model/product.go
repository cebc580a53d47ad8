package model

import (
	"errors"
	"time"
)

// Product statuses.
const (
	ProductStatusAvailable = "available"
	ProductStatusSoldOut   = "sold_out"
	ProductStatusWithdrawn = "withdrawn"
)

// Offer statuses.
const (
	OfferStatusPending   = "pending"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
	OfferStatusCancelled = "cancelled"
)

// Product is surplus produce listed for sale on the marketplace.
type Product struct {
	ID          int64      `json:"id"`
	SellerID    int64      `json:"seller_id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Description string     `json:"description,omitempty"`
	Quantity    float64    `json:"quantity"`
	Unit        string     `json:"unit"`
	Price       float64    `json:"price"`
	HarvestDate *Date      `json:"harvest_date,omitempty"`
	ExpiryDate  *Date      `json:"expiry_date,omitempty"`
	FarmName    string     `json:"farm_name,omitempty"`
	Location    string     `json:"location,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	SellerName string `json:"seller_name,omitempty"`
}

// ProductInput is the client-editable part of a product.
type ProductInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Category    string  `json:"category" validate:"max=100"`
	Description string  `json:"description" validate:"max=2000"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	Unit        string  `json:"unit" validate:"required,max=32"`
	Price       float64 `json:"price" validate:"gte=0"`
	HarvestDate *Date   `json:"harvest_date"`
	ExpiryDate  *Date   `json:"expiry_date"`
	FarmName    string  `json:"farm_name" validate:"max=200"`
	Location    string  `json:"location" validate:"max=200"`
	Status      string  `json:"status" validate:"omitempty,oneof=available sold_out withdrawn"`
}

// Check implements cross-field rules.
func (in ProductInput) Check() error {
	if in.HarvestDate != nil && in.ExpiryDate != nil && in.ExpiryDate.Before(*in.HarvestDate) {
		return errors.New("expiry_date must not be before harvest_date")
	}
	return nil
}

// Offer is a buyer's bid for some quantity of a product.
type Offer struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	BuyerID   int64     `json:"buyer_id"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Message   string    `json:"message,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined fields (not always populated).
	ProductName string `json:"product_name,omitempty"`
	SellerID    int64  `json:"seller_id,omitempty"`
	BuyerName   string `json:"buyer_name,omitempty"`
}

// OfferInput is the payload for making an offer.
type OfferInput struct {
	Quantity float64 `json:"quantity" validate:"gt=0"`
	Price    float64 `json:"price" validate:"gte=0"`
	Message  string  `json:"message" validate:"max=1000"`
}
