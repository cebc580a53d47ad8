package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/store"
)

// OffersHandler handles buyer offers on marketplace products.
type OffersHandler struct {
	DB *sql.DB
	events
}

// Create handles POST /api/products/{id}/offers.
func (h *OffersHandler) Create(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req model.OfferInput
	if !decodeInput(w, r, &req) {
		return
	}

	o, err := store.CreateOffer(r.Context(), h.DB, productID, claims.UserID, req)
	if err != nil {
		storeError(w, err, "create offer")
		return
	}

	slog.Info("offer made", "user", claims.Username, "product", productID, "offer", o.ID)
	h.publish("offers", realtime.EventInsert, o, o.BuyerID, o.SellerID)
	h.notify(r.Context(), o.SellerID, model.NotifyOffer, "New offer",
		fmt.Sprintf("%s offered %g for %g of %s", o.BuyerName, o.Price, o.Quantity, o.ProductName), o.ID)
	jsonResponse(w, http.StatusCreated, o)
}

// List handles GET /api/offers?side=buyer|seller.
func (h *OffersHandler) List(w http.ResponseWriter, r *http.Request) {
	side := r.URL.Query().Get("side")
	if side != "" && side != "buyer" && side != "seller" {
		jsonError(w, http.StatusBadRequest, "side must be buyer or seller")
		return
	}

	offers, err := store.ListOffers(r.Context(), h.DB, GetClaims(r.Context()).UserID, side)
	if err != nil {
		storeError(w, err, "list offers")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(offers))
}

// Accept handles POST /api/offers/{id}/accept.
func (h *OffersHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "offer")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	o, err := store.AcceptOffer(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		storeError(w, err, "accept offer")
		return
	}

	slog.Info("offer accepted", "user", claims.Username, "offer", id)
	h.publish("offers", realtime.EventUpdate, o, o.BuyerID, o.SellerID)
	if p, err := store.GetProduct(r.Context(), h.DB, o.ProductID); err == nil && p != nil {
		h.publish("products", realtime.EventUpdate, p)
	}
	h.notify(r.Context(), o.BuyerID, model.NotifyOfferAccepted, "Offer accepted",
		fmt.Sprintf("Your offer for %s was accepted", o.ProductName), o.ID)
	jsonResponse(w, http.StatusOK, o)
}

// Reject handles POST /api/offers/{id}/reject.
func (h *OffersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "offer")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	o, err := store.RejectOffer(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		storeError(w, err, "reject offer")
		return
	}

	slog.Info("offer rejected", "user", claims.Username, "offer", id)
	h.publish("offers", realtime.EventUpdate, o, o.BuyerID, o.SellerID)
	h.notify(r.Context(), o.BuyerID, model.NotifyOfferRejected, "Offer rejected",
		fmt.Sprintf("Your offer for %s was rejected", o.ProductName), o.ID)
	jsonResponse(w, http.StatusOK, o)
}

// Cancel handles POST /api/offers/{id}/cancel.
func (h *OffersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "offer")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	o, err := store.CancelOffer(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		storeError(w, err, "cancel offer")
		return
	}

	slog.Info("offer cancelled", "user", claims.Username, "offer", id)
	h.publish("offers", realtime.EventUpdate, o, o.BuyerID, o.SellerID)
	jsonResponse(w, http.StatusOK, o)
}
