package model

import "time"

// Notification types.
const (
	NotifyBorrowRequest     = "borrow_request"
	NotifyBorrowAccepted    = "borrow_accepted"
	NotifyBorrowDeclined    = "borrow_declined"
	NotifyBorrowCancelled   = "borrow_cancelled"
	NotifyBorrowReturned    = "borrow_returned"
	NotifyBorrowOverdue     = "borrow_overdue"
	NotifyLendingMessage    = "lending_message"
	NotifyMessage           = "message"
	NotifyOffer             = "offer"
	NotifyOfferAccepted     = "offer_accepted"
	NotifyOfferRejected     = "offer_rejected"
	NotifyInventoryExpiring = "inventory_expiring"
)

// Notification is a per-user alert about something that happened.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ItemID    *int64    `json:"item_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
