package model

import "time"

// Equipment statuses. A listing moves available -> requested -> borrowed ->
// available; declining or cancelling a request moves it back to available.
const (
	EquipmentStatusAvailable = "available"
	EquipmentStatusRequested = "requested"
	EquipmentStatusBorrowed  = "borrowed"
)

// Equipment is a piece of machinery or tooling offered for lending.
type Equipment struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Available   bool       `json:"available"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	OwnerName string `json:"owner_name,omitempty"`
}

// EquipmentInput is the client-editable part of a listing. Status is not
// editable; it only changes through the lending lifecycle.
type EquipmentInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Category    string `json:"category" validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
	Location    string `json:"location" validate:"max=200"`
}
