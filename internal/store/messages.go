package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/kmetija/internal/model"
)

// Page size bounds for ListConversation.
const (
	DefaultMessageLimit = 100
	MaxMessageLimit     = 500
)

const messageColumns = `id, sender_id, recipient_id, body, created_at, read_at`

func scanMessage(row interface{ Scan(...any) error }) (*model.Message, error) {
	m := &model.Message{}
	if err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.CreatedAt, &m.ReadAt); err != nil {
		return nil, err
	}
	return m, nil
}

// SendMessage stores a direct message from sender to recipient.
func SendMessage(ctx context.Context, db *sql.DB, senderID, recipientID int64, body string) (*model.Message, error) {
	if senderID == recipientID {
		return nil, invalid("cannot send a message to yourself")
	}
	recipient, err := GetUser(ctx, db, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil || recipient.DeletedAt != nil {
		return nil, notFound("recipient not found")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO messages (sender_id, recipient_id, body) VALUES (?, ?, ?)`,
		senderID, recipientID, body,
	)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting message id: %w", err)
	}

	m, err := scanMessage(db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return m, nil
}

// ListConversation returns the messages between two users with an ID greater
// than afterID, oldest first. Both participants see the same order.
func ListConversation(ctx context.Context, db *sql.DB, userID, partnerID, afterID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))
		   AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		userID, partnerID, partnerID, userID, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversation: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// ListConversations returns one entry per chat partner with the latest
// message and the number of unread messages from that partner, most recent
// conversation first.
func ListConversations(ctx context.Context, db *sql.DB, userID int64) ([]model.Conversation, error) {
	rows, err := db.QueryContext(ctx,
		`WITH latest AS (
		     SELECT CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS partner_id,
		            MAX(id) AS last_id
		     FROM messages
		     WHERE sender_id = ? OR recipient_id = ?
		     GROUP BY partner_id
		 )
		 SELECT l.partner_id, `+nameOf("p", "u")+`,
		        m.id, m.sender_id, m.recipient_id, m.body, m.created_at, m.read_at,
		        (SELECT COUNT(*) FROM messages x
		         WHERE x.sender_id = l.partner_id AND x.recipient_id = ? AND x.read_at IS NULL)
		 FROM latest l
		 JOIN messages m ON m.id = l.last_id
		 JOIN users u ON u.id = l.partner_id
		 LEFT JOIN profiles p ON p.user_id = l.partner_id
		 ORDER BY m.id DESC`,
		userID, userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var conversations []model.Conversation
	for rows.Next() {
		var c model.Conversation
		m := &c.LastMessage
		if err := rows.Scan(&c.PartnerID, &c.PartnerName,
			&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.CreatedAt, &m.ReadAt, &c.Unread); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// MarkConversationRead marks every unread message from partner to user as
// read and returns how many were marked.
func MarkConversationRead(ctx context.Context, db *sql.DB, userID, partnerID int64) (int64, error) {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE messages SET read_at = CURRENT_TIMESTAMP
		 WHERE sender_id = ? AND recipient_id = ? AND read_at IS NULL`,
		partnerID, userID,
	))
	if err != nil {
		return 0, fmt.Errorf("marking conversation read: %w", err)
	}
	return n, nil
}
