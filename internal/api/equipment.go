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

// EquipmentHandler handles equipment listings.
type EquipmentHandler struct {
	DB      *sql.DB
	Storage *storage.Service
	events
}

// List handles GET /api/equipment.
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID, err := queryID(r, "owner")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	list, err := store.ListEquipment(r.Context(), h.DB, store.EquipmentFilter{
		OwnerID:  ownerID,
		Category: q.Get("category"),
		Status:   q.Get("status"),
	})
	if err != nil {
		storeError(w, err, "list equipment")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(list))
}

// Create handles POST /api/equipment.
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req model.EquipmentInput
	if !decodeInput(w, r, &req) {
		return
	}

	e, err := store.CreateEquipment(r.Context(), h.DB, claims.UserID, req)
	if err != nil {
		storeError(w, err, "create equipment")
		return
	}

	slog.Info("equipment listed", "user", claims.Username, "equipment", e.Name, "id", e.ID)
	h.publish("equipment", realtime.EventInsert, e)
	jsonResponse(w, http.StatusCreated, e)
}

// Get handles GET /api/equipment/{id}.
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "equipment")
	if !ok {
		return
	}

	e, err := store.GetEquipment(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get equipment")
		return
	}
	if e == nil || e.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return
	}
	jsonResponse(w, http.StatusOK, e)
}

// Update handles PUT /api/equipment/{id}.
func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "equipment")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req model.EquipmentInput
	if !decodeInput(w, r, &req) {
		return
	}

	e, err := store.UpdateEquipment(r.Context(), h.DB, id, claims.UserID, req)
	if err != nil {
		storeError(w, err, "update equipment")
		return
	}

	slog.Info("equipment updated", "user", claims.Username, "id", id)
	h.publish("equipment", realtime.EventUpdate, e)
	jsonResponse(w, http.StatusOK, e)
}

// Delete handles DELETE /api/equipment/{id}.
func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "equipment")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	if err := store.DeleteEquipment(r.Context(), h.DB, id, claims.UserID); err != nil {
		storeError(w, err, "delete equipment")
		return
	}

	slog.Info("equipment deleted", "user", claims.Username, "id", id)
	h.deleted("equipment", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "equipment deleted"})
}

// UploadImage handles PUT /api/equipment/{id}/image.
func (h *EquipmentHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "equipment")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	e, err := store.GetEquipment(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get equipment")
		return
	}
	if e == nil || e.DeletedAt != nil || e.OwnerID != claims.UserID {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return
	}

	if _, ok := attachImage(w, r, h.Storage, storage.BucketEquipment, claims.UserID, e.ImageURL,
		func(ctx context.Context, url string) error {
			return store.SetEquipmentImage(ctx, h.DB, id, claims.UserID, url)
		}); !ok {
		return
	}

	e, err = store.GetEquipment(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get equipment")
		return
	}
	slog.Info("equipment image uploaded", "user", claims.Username, "id", id)
	h.publish("equipment", realtime.EventUpdate, e)
	jsonResponse(w, http.StatusOK, e)
}
