package model

import (
	"errors"
	"time"
)

// Borrow request statuses.
const (
	BorrowStatusPending   = "pending"
	BorrowStatusAccepted  = "accepted"
	BorrowStatusDeclined  = "declined"
	BorrowStatusCancelled = "cancelled"
	BorrowStatusReturned  = "returned"
)

// BorrowRequest is a borrower's time-bounded ask to use a listing.
type BorrowRequest struct {
	ID          int64      `json:"id"`
	EquipmentID int64      `json:"equipment_id"`
	BorrowerID  int64      `json:"borrower_id"`
	StartDate   Date       `json:"start_date"`
	EndDate     Date       `json:"end_date"`
	Message     string     `json:"message,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`

	// Joined fields (not always populated).
	EquipmentName string `json:"equipment_name,omitempty"`
	OwnerID       int64  `json:"owner_id,omitempty"`
	BorrowerName  string `json:"borrower_name,omitempty"`
}

// Participant reports whether userID is the borrower or the listing owner.
func (b *BorrowRequest) Participant(userID int64) bool {
	return userID == b.BorrowerID || userID == b.OwnerID
}

// Counterparty returns the other side of the request from userID's view.
func (b *BorrowRequest) Counterparty(userID int64) int64 {
	if userID == b.BorrowerID {
		return b.OwnerID
	}
	return b.BorrowerID
}

// BorrowInput is the payload of a borrow request.
type BorrowInput struct {
	StartDate Date   `json:"start_date"`
	EndDate   Date   `json:"end_date"`
	Message   string `json:"message" validate:"max=1000"`
}

// Check implements cross-field rules.
func (in BorrowInput) Check() error {
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if in.EndDate.Before(in.StartDate) {
		return errors.New("end_date must not be before start_date")
	}
	return nil
}

// LendingMessage is a note exchanged between borrower and owner on a request.
type LendingMessage struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	SenderID  int64     `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	// Joined fields (not always populated).
	SenderName string `json:"sender_name,omitempty"`
}
