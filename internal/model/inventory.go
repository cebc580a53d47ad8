package model

import (
	"errors"
	"math"
	"time"
)

// Quantities are kept to three decimal places (grams of a kilogram,
// millilitres of a litre) so that stock sold in parts reaches zero.
const quantityScale = 1000

// RoundQuantity rounds q to the stored precision.
func RoundQuantity(q float64) float64 {
	return math.Round(q*quantityScale) / quantityScale
}

// InventoryItem is a lot of produce or supplies tracked by a farmer.
type InventoryItem struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Quantity    float64    `json:"quantity"`
	Unit        string     `json:"unit"`
	HarvestDate *Date      `json:"harvest_date,omitempty"`
	ExpiryDate  *Date      `json:"expiry_date,omitempty"`
	FarmName    string     `json:"farm_name,omitempty"`
	Location    string     `json:"location,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// InventoryItemInput is the client-editable part of an inventory item.
type InventoryItemInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Category    string   `json:"category" validate:"max=100"`
	Quantity    float64  `json:"quantity" validate:"gte=0"`
	Unit        string   `json:"unit" validate:"required,max=32"`
	HarvestDate *Date    `json:"harvest_date"`
	ExpiryDate  *Date    `json:"expiry_date"`
	FarmName    string   `json:"farm_name" validate:"max=200"`
	Location    string   `json:"location" validate:"max=200"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Notes       string   `json:"notes" validate:"max=2000"`
}

// Check implements cross-field rules.
func (in InventoryItemInput) Check() error {
	if in.HarvestDate != nil && in.ExpiryDate != nil && in.ExpiryDate.Before(*in.HarvestDate) {
		return errors.New("expiry_date must not be before harvest_date")
	}
	return nil
}

// SellInput moves part of an inventory item onto the marketplace.
type SellInput struct {
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	Price       float64 `json:"price" validate:"gte=0"`
	Description string  `json:"description" validate:"max=2000"`
}
