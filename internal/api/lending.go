package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/store"
)

// BorrowHandler handles borrow requests and the messages exchanged on them.
type BorrowHandler struct {
	DB *sql.DB
	events
}

// Request handles POST /api/equipment/{id}/borrow.
func (h *BorrowHandler) Request(w http.ResponseWriter, r *http.Request) {
	equipmentID, ok := pathID(w, r, "id", "equipment")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req model.BorrowInput
	if !decodeInput(w, r, &req) {
		return
	}

	br, err := store.RequestBorrow(r.Context(), h.DB, equipmentID, claims.UserID, req)
	if err != nil {
		storeError(w, err, "request equipment")
		return
	}

	slog.Info("borrow requested", "user", claims.Username, "equipment", equipmentID, "request", br.ID)
	h.changed(r.Context(), br, realtime.EventInsert)
	h.notify(r.Context(), br.OwnerID, model.NotifyBorrowRequest, "Borrow request",
		fmt.Sprintf("%s wants to borrow %s from %s to %s", br.BorrowerName, br.EquipmentName, br.StartDate, br.EndDate), br.ID)
	jsonResponse(w, http.StatusCreated, br)
}

// List handles GET /api/borrow-requests?role=borrower|owner&status=.
func (h *BorrowHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	q := r.URL.Query()

	f := store.BorrowFilter{Status: q.Get("status")}
	switch q.Get("role") {
	case "borrower":
		f.BorrowerID = claims.UserID
	case "owner":
		f.OwnerID = claims.UserID
	case "":
		f.UserID = claims.UserID
	default:
		jsonError(w, http.StatusBadRequest, "role must be borrower or owner")
		return
	}
	equipmentID, err := queryID(r, "equipment")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid equipment id")
		return
	}
	f.EquipmentID = equipmentID

	list, err := store.ListBorrowRequests(r.Context(), h.DB, f)
	if err != nil {
		storeError(w, err, "list borrow requests")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(list))
}

// Get handles GET /api/borrow-requests/{id}.
func (h *BorrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}

	br, err := store.GetBorrowRequest(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get borrow request")
		return
	}
	if br == nil || !br.Participant(GetClaims(r.Context()).UserID) {
		jsonError(w, http.StatusNotFound, "borrow request not found")
		return
	}
	jsonResponse(w, http.StatusOK, br)
}

// Accept handles POST /api/borrow-requests/{id}/accept.
func (h *BorrowHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accept", store.AcceptBorrowRequest, func(br *model.BorrowRequest) (int64, string, string, string) {
		return br.BorrowerID, model.NotifyBorrowAccepted, "Borrow request accepted",
			fmt.Sprintf("Your request to borrow %s was accepted", br.EquipmentName)
	})
}

// Decline handles POST /api/borrow-requests/{id}/decline.
func (h *BorrowHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "decline", store.DeclineBorrowRequest, func(br *model.BorrowRequest) (int64, string, string, string) {
		return br.BorrowerID, model.NotifyBorrowDeclined, "Borrow request declined",
			fmt.Sprintf("Your request to borrow %s was declined", br.EquipmentName)
	})
}

// Cancel handles POST /api/borrow-requests/{id}/cancel.
func (h *BorrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", store.CancelBorrowRequest, func(br *model.BorrowRequest) (int64, string, string, string) {
		return br.OwnerID, model.NotifyBorrowCancelled, "Borrow request cancelled",
			fmt.Sprintf("%s cancelled the request for %s", br.BorrowerName, br.EquipmentName)
	})
}

// Return handles POST /api/borrow-requests/{id}/return. Either side may
// record the return; the other side is notified.
func (h *BorrowHandler) Return(w http.ResponseWriter, r *http.Request) {
	userID := GetClaims(r.Context()).UserID
	h.transition(w, r, "return", store.ReturnEquipment, func(br *model.BorrowRequest) (int64, string, string, string) {
		return br.Counterparty(userID), model.NotifyBorrowReturned, "Equipment returned",
			fmt.Sprintf("%s has been marked as returned", br.EquipmentName)
	})
}

type transitionFunc func(ctx context.Context, db *sql.DB, id, userID int64) (*model.BorrowRequest, error)

// notice picks the recipient and text of the notification for a transition.
type notice func(br *model.BorrowRequest) (userID int64, typ, title, message string)

func (h *BorrowHandler) transition(w http.ResponseWriter, r *http.Request, action string, apply transitionFunc, n notice) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	br, err := apply(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		storeError(w, err, action+" borrow request")
		return
	}

	slog.Info("borrow request "+br.Status, "user", claims.Username, "request", id, "equipment", br.EquipmentID)
	h.changed(r.Context(), br, realtime.EventUpdate)
	to, typ, title, message := n(br)
	h.notify(r.Context(), to, typ, title, message, br.ID)
	jsonResponse(w, http.StatusOK, br)
}

// changed publishes a request to its participants and the listing it moved.
func (h *BorrowHandler) changed(ctx context.Context, br *model.BorrowRequest, event string) {
	h.publish("borrow_requests", event, br, br.BorrowerID, br.OwnerID)
	if e, err := store.GetEquipment(ctx, h.DB, br.EquipmentID); err == nil && e != nil {
		h.publish("equipment", realtime.EventUpdate, e)
	}
}

// ListMessages handles GET /api/borrow-requests/{id}/messages.
func (h *BorrowHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}

	msgs, err := store.ListLendingMessages(r.Context(), h.DB, id, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, err, "list lending messages")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(msgs))
}

// SendMessage handles POST /api/borrow-requests/{id}/messages.
func (h *BorrowHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req model.MessageInput
	if !decodeInput(w, r, &req) {
		return
	}

	msg, err := store.SendLendingMessage(r.Context(), h.DB, id, claims.UserID, req.Body)
	if err != nil {
		storeError(w, err, "send lending message")
		return
	}

	br, err := store.GetBorrowRequest(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get borrow request")
		return
	}

	h.publish("lending_messages", realtime.EventInsert, msg, br.BorrowerID, br.OwnerID)
	h.notify(r.Context(), br.Counterparty(claims.UserID), model.NotifyLendingMessage,
		"Message about "+br.EquipmentName, fmt.Sprintf("%s: %s", msg.SenderName, preview(msg.Body)), br.ID)
	jsonResponse(w, http.StatusCreated, msg)
}

// preview shortens a message body for notifications.
func preview(body string) string {
	const limit = 80
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "..."
}
