package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/kmetija/internal/model"
)

const notificationColumns = `id, user_id, type, title, message, item_id, is_read, created_at`

func scanNotification(row interface{ Scan(...any) error }) (*model.Notification, error) {
	n := &model.Notification{}
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.ItemID, &n.Read, &n.CreatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

// CreateNotification stores a notification for a user.
func CreateNotification(ctx context.Context, db *sql.DB, userID int64, typ, title, message string, itemID *int64) (*model.Notification, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message, item_id) VALUES (?, ?, ?, ?, ?)`,
		userID, typ, title, message, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting notification id: %w", err)
	}

	n, err := scanNotification(db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("getting notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a user's notifications, newest first.
func ListNotifications(ctx context.Context, db *sql.DB, userID int64, unreadOnly bool) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

// MarkNotificationRead marks one of the user's notifications as read.
func MarkNotificationRead(ctx context.Context, db *sql.DB, id, userID int64) error {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM notifications WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return notFound("notification not found")
	}
	if err != nil {
		return fmt.Errorf("getting notification: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the user as
// read and returns how many changed.
func MarkAllNotificationsRead(ctx context.Context, db *sql.DB, userID int64) (int64, error) {
	n, err := affected(db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID,
	))
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return n, nil
}

// CountUnreadNotifications returns the number of unread notifications.
func CountUnreadNotifications(ctx context.Context, db *sql.DB, userID int64) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}
