// Package notify delivers user notifications: stored, pushed on the change
// feed and optionally e-mailed.
package notify

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/store"
)

// DefaultQueueSize is the mail queue length used when New gets zero.
const DefaultQueueSize = 100

// Mail is a queued e-mail.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends e-mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// Notifier stores notifications and fans them out.
type Notifier struct {
	db     *sql.DB
	hub    *realtime.Hub
	mailer Mailer
	queue  chan Mail
}

// New creates a Notifier. mailer may be nil to disable e-mail.
func New(db *sql.DB, hub *realtime.Hub, mailer Mailer, queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Notifier{
		db:     db,
		hub:    hub,
		mailer: mailer,
		queue:  make(chan Mail, queueSize),
	}
}

// Notify stores a notification for userID, publishes it to that user and
// queues an e-mail when mail is configured and the user has an address.
func (n *Notifier) Notify(ctx context.Context, userID int64, typ, title, message string, itemID *int64) (*model.Notification, error) {
	notification, err := store.CreateNotification(ctx, n.db, userID, typ, title, message, itemID)
	if err != nil {
		return nil, err
	}

	if n.hub != nil {
		if _, err := n.hub.Publish("notifications", realtime.EventInsert, notification, userID); err != nil {
			slog.Error("failed to publish notification", "error", err, "notification_id", notification.ID)
		}
	}

	if n.mailer != nil {
		n.queueMail(ctx, userID, title, message)
	}

	return notification, nil
}

func (n *Notifier) queueMail(ctx context.Context, userID int64, subject, body string) {
	profile, err := store.GetProfile(ctx, n.db, userID)
	if err != nil {
		slog.Error("failed to load profile for mail", "error", err, "user_id", userID)
		return
	}
	if profile == nil || profile.Email == "" {
		return
	}

	select {
	case n.queue <- Mail{To: profile.Email, Subject: subject, Body: body}:
	default:
		slog.Warn("mail queue full, dropping notification mail", "user_id", userID)
	}
}

// Run sends queued mail until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-n.queue:
			if err := n.mailer.Send(ctx, m); err != nil {
				slog.Error("failed to send mail", "error", err, "to", m.To)
				continue
			}
			slog.Info("mail sent", "to", m.To, "subject", m.Subject)
		}
	}
}

// Pending returns the number of queued mails.
func (n *Notifier) Pending() int {
	return len(n.queue)
}
