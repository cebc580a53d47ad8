package model

import "time"

// Message is a direct chat message between two users.
type Message struct {
	ID          int64      `json:"id"`
	SenderID    int64      `json:"sender_id"`
	RecipientID int64      `json:"recipient_id"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Conversation summarizes the chat between a user and one partner.
type Conversation struct {
	PartnerID   int64   `json:"partner_id"`
	PartnerName string  `json:"partner_name"`
	LastMessage Message `json:"last_message"`
	Unread      int     `json:"unread"`
}

// MessageInput is the payload for chat and lending messages.
type MessageInput struct {
	Body string `json:"body" validate:"required,max=4000"`
}
