package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/store"
)

// NotificationsHandler handles a user's notifications.
type NotificationsHandler struct {
	DB *sql.DB
	events
}

type notificationsResponse struct {
	Notifications any `json:"notifications"`
	Unread        int `json:"unread"`
}

// List handles GET /api/notifications?unread=true.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := GetClaims(r.Context()).UserID

	list, err := store.ListNotifications(r.Context(), h.DB, userID, r.URL.Query().Get("unread") == "true")
	if err != nil {
		storeError(w, err, "list notifications")
		return
	}
	unread, err := store.CountUnreadNotifications(r.Context(), h.DB, userID)
	if err != nil {
		storeError(w, err, "count notifications")
		return
	}
	jsonResponse(w, http.StatusOK, notificationsResponse{Notifications: orEmpty(list), Unread: unread})
}

// MarkRead handles POST /api/notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "notification")
	if !ok {
		return
	}
	userID := GetClaims(r.Context()).UserID

	if err := store.MarkNotificationRead(r.Context(), h.DB, id, userID); err != nil {
		storeError(w, err, "mark notification read")
		return
	}

	h.publish("notifications", realtime.EventUpdate, map[string]any{"id": id, "user_id": userID, "read": true}, userID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "notification marked read"})
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := GetClaims(r.Context()).UserID

	n, err := store.MarkAllNotificationsRead(r.Context(), h.DB, userID)
	if err != nil {
		storeError(w, err, "mark notifications read")
		return
	}

	if n > 0 {
		h.publish("notifications", realtime.EventUpdate, map[string]any{"user_id": userID, "read": true}, userID)
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"updated": n})
}
