package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/storage"
	"github.com/erazemk/kmetija/internal/store"
)

// ProductsHandler handles the marketplace listings.
type ProductsHandler struct {
	DB      *sql.DB
	Storage *storage.Service
	events
}

// List handles GET /api/products.
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sellerID, err := queryID(r, "seller")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid seller id")
		return
	}

	products, err := store.ListProducts(r.Context(), h.DB, store.ProductFilter{
		SellerID: sellerID,
		Category: q.Get("category"),
		Query:    q.Get("q"),
		Status:   q.Get("status"),
	})
	if err != nil {
		storeError(w, err, "list products")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(products))
}

// Create handles POST /api/products.
func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req model.ProductInput
	if !decodeInput(w, r, &req) {
		return
	}

	p, err := store.CreateProduct(r.Context(), h.DB, claims.UserID, req)
	if err != nil {
		storeError(w, err, "create product")
		return
	}

	slog.Info("product listed", "user", claims.Username, "product", p.Name, "id", p.ID)
	h.publish("products", realtime.EventInsert, p)
	jsonResponse(w, http.StatusCreated, p)
}

// Get handles GET /api/products/{id}.
func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}

	p, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get product")
		return
	}
	if p == nil || p.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Update handles PUT /api/products/{id}.
func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req model.ProductInput
	if !decodeInput(w, r, &req) {
		return
	}

	p, err := store.UpdateProduct(r.Context(), h.DB, id, claims.UserID, req)
	if err != nil {
		storeError(w, err, "update product")
		return
	}

	slog.Info("product updated", "user", claims.Username, "id", id)
	h.publish("products", realtime.EventUpdate, p)
	jsonResponse(w, http.StatusOK, p)
}

// Delete handles DELETE /api/products/{id}. Pending offers on the product
// are rejected and their buyers told so.
func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	offers, err := store.ListOffers(r.Context(), h.DB, claims.UserID, "seller")
	if err != nil {
		storeError(w, err, "list offers")
		return
	}

	if err := store.DeleteProduct(r.Context(), h.DB, id, claims.UserID); err != nil {
		storeError(w, err, "delete product")
		return
	}

	slog.Info("product deleted", "user", claims.Username, "id", id)
	h.deleted("products", id)
	for _, o := range offers {
		if o.ProductID != id || o.Status != model.OfferStatusPending {
			continue
		}
		o.Status = model.OfferStatusRejected
		h.publish("offers", realtime.EventUpdate, o, o.BuyerID, o.SellerID)
		h.notify(r.Context(), o.BuyerID, model.NotifyOfferRejected, "Offer rejected",
			o.ProductName+" is no longer on sale", o.ID)
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

// UploadImage handles PUT /api/products/{id}/image.
func (h *ProductsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	p, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get product")
		return
	}
	if p == nil || p.DeletedAt != nil || p.SellerID != claims.UserID {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}

	// Images copied from inventory stay with the inventory item.
	old := p.ImageURL
	if bucket, _, _ := storage.ParseURL(old); bucket != storage.BucketMarketplace {
		old = ""
	}

	if _, ok := attachImage(w, r, h.Storage, storage.BucketMarketplace, claims.UserID, old,
		func(ctx context.Context, url string) error {
			return store.SetProductImage(ctx, h.DB, id, claims.UserID, url)
		}); !ok {
		return
	}

	p, err = store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get product")
		return
	}
	slog.Info("product image uploaded", "user", claims.Username, "id", id)
	h.publish("products", realtime.EventUpdate, p)
	jsonResponse(w, http.StatusOK, p)
}
