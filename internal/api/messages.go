package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/store"
)

// MessagesHandler handles direct chat between users.
type MessagesHandler struct {
	DB *sql.DB
	events
}

// Conversations handles GET /api/messages.
func (h *MessagesHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	convs, err := store.ListConversations(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, err, "list conversations")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(convs))
}

// List handles GET /api/messages/{user}?after=&limit=.
func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := pathID(w, r, "user", "user")
	if !ok {
		return
	}

	afterID, err := queryID(r, "after")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid after id")
		return
	}
	limit := store.DefaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	msgs, err := store.ListConversation(r.Context(), h.DB, GetClaims(r.Context()).UserID, partnerID, afterID, limit)
	if err != nil {
		storeError(w, err, "list messages")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(msgs))
}

// Send handles POST /api/messages/{user}.
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := pathID(w, r, "user", "user")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req model.MessageInput
	if !decodeInput(w, r, &req) {
		return
	}

	msg, err := store.SendMessage(r.Context(), h.DB, claims.UserID, recipientID, req.Body)
	if err != nil {
		storeError(w, err, "send message")
		return
	}

	slog.Debug("message sent", "user", claims.Username, "recipient", recipientID, "id", msg.ID)
	h.publish("messages", realtime.EventInsert, msg, msg.SenderID, msg.RecipientID)
	h.notify(r.Context(), recipientID, model.NotifyMessage, "New message from "+claims.Username,
		preview(msg.Body), msg.ID)
	jsonResponse(w, http.StatusCreated, msg)
}

// MarkRead handles POST /api/messages/{user}/read.
func (h *MessagesHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := pathID(w, r, "user", "user")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	n, err := store.MarkConversationRead(r.Context(), h.DB, claims.UserID, partnerID)
	if err != nil {
		storeError(w, err, "mark messages read")
		return
	}

	if n > 0 {
		h.publish("messages", realtime.EventUpdate,
			map[string]any{"sender_id": partnerID, "recipient_id": claims.UserID, "read": true},
			claims.UserID, partnerID)
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"updated": n})
}
