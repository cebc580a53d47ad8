package api

import (
	"context"
	"log/slog"

	"github.com/erazemk/kmetija/internal/notify"
	"github.com/erazemk/kmetija/internal/realtime"
)

// events publishes row changes and sends notifications on behalf of
// handlers. Failures are logged; the mutation that caused them already
// succeeded.
type events struct {
	hub      *realtime.Hub
	notifier *notify.Notifier
}

func (e events) publish(table, event string, record any, audience ...int64) {
	if e.hub == nil {
		return
	}
	if _, err := e.hub.Publish(table, event, record, audience...); err != nil {
		slog.Error("failed to publish change", "table", table, "event", event, "error", err)
	}
}

func (e events) deleted(table string, id int64, audience ...int64) {
	e.publish(table, realtime.EventDelete, map[string]any{"id": id}, audience...)
}

func (e events) notify(ctx context.Context, userID int64, typ, title, message string, itemID int64) {
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.Notify(ctx, userID, typ, title, message, &itemID); err != nil {
		slog.Error("failed to notify user", "user_id", userID, "type", typ, "error", err)
	}
}
