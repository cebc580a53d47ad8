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

// InventoryHandler handles a farmer's own inventory.
type InventoryHandler struct {
	DB      *sql.DB
	Storage *storage.Service
	events
}

type sellResponse struct {
	Product *model.Product       `json:"product"`
	Item    *model.InventoryItem `json:"item"`
}

// List handles GET /api/inventory.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	items, err := store.ListInventoryItems(r.Context(), h.DB, claims.UserID, r.URL.Query().Get("category"))
	if err != nil {
		storeError(w, err, "list inventory")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(items))
}

// Create handles POST /api/inventory.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req model.InventoryItemInput
	if !decodeInput(w, r, &req) {
		return
	}

	item, err := store.CreateInventoryItem(r.Context(), h.DB, claims.UserID, req)
	if err != nil {
		storeError(w, err, "create inventory item")
		return
	}

	slog.Info("inventory item created", "user", claims.Username, "item", item.Name, "id", item.ID)
	h.publish("inventory_items", realtime.EventInsert, item, claims.UserID)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/inventory/{id}.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "inventory item")
	if !ok {
		return
	}
	if item := h.owned(w, r, id); item != nil {
		jsonResponse(w, http.StatusOK, item)
	}
}

// owned loads an item of the caller, writing a 404 for anyone else's.
func (h *InventoryHandler) owned(w http.ResponseWriter, r *http.Request, id int64) *model.InventoryItem {
	item, err := store.GetInventoryItem(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get inventory item")
		return nil
	}
	if item == nil || item.OwnerID != GetClaims(r.Context()).UserID {
		jsonError(w, http.StatusNotFound, "inventory item not found")
		return nil
	}
	return item
}

// Update handles PUT /api/inventory/{id}.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "inventory item")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req model.InventoryItemInput
	if !decodeInput(w, r, &req) {
		return
	}

	item, err := store.UpdateInventoryItem(r.Context(), h.DB, id, claims.UserID, req)
	if err != nil {
		storeError(w, err, "update inventory item")
		return
	}

	slog.Info("inventory item updated", "user", claims.Username, "id", id)
	h.publish("inventory_items", realtime.EventUpdate, item, claims.UserID)
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/inventory/{id}.
func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "inventory item")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	if err := store.DeleteInventoryItem(r.Context(), h.DB, id, claims.UserID); err != nil {
		storeError(w, err, "delete inventory item")
		return
	}

	slog.Info("inventory item deleted", "user", claims.Username, "id", id)
	h.deleted("inventory_items", id, claims.UserID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "inventory item deleted"})
}

// UploadImage handles PUT /api/inventory/{id}/image.
func (h *InventoryHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "inventory item")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	if h.owned(w, r, id) == nil {
		return
	}

	// Products listed from this item keep pointing at the old image, so it
	// is not removed.
	if _, ok := attachImage(w, r, h.Storage, storage.BucketInventory, claims.UserID, "",
		func(ctx context.Context, url string) error {
			return store.SetInventoryItemImage(ctx, h.DB, id, claims.UserID, url)
		}); !ok {
		return
	}

	item, err := store.GetInventoryItem(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get inventory item")
		return
	}
	slog.Info("inventory image uploaded", "user", claims.Username, "id", id)
	h.publish("inventory_items", realtime.EventUpdate, item, claims.UserID)
	jsonResponse(w, http.StatusOK, item)
}

// Sell handles POST /api/inventory/{id}/sell.
func (h *InventoryHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "inventory item")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req model.SellInput
	if !decodeInput(w, r, &req) {
		return
	}

	product, item, err := store.ListItemForSale(r.Context(), h.DB, id, claims.UserID, req)
	if err != nil {
		storeError(w, err, "list item for sale")
		return
	}

	slog.Info("inventory item listed for sale", "user", claims.Username, "id", id,
		"product", product.ID, "quantity", req.Quantity)
	h.publish("inventory_items", realtime.EventUpdate, item, claims.UserID)
	h.publish("products", realtime.EventInsert, product)
	jsonResponse(w, http.StatusCreated, sellResponse{Product: product, Item: item})
}
