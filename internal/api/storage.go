package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/kmetija/internal/imaging"
	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/storage"
)

// maxUploadBytes caps multipart bodies; the image itself is capped by the
// processor.
const maxUploadBytes = 12 << 20

// StorageHandler handles object uploads and public downloads.
type StorageHandler struct {
	Storage *storage.Service
}

// Upload handles POST /api/storage/{bucket}.
func (h *StorageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	obj, ok := receiveImage(w, r, h.Storage, r.PathValue("bucket"), claims.UserID)
	if !ok {
		return
	}
	slog.Info("object uploaded", "user", claims.Username, "bucket", obj.Bucket, "name", obj.Name)
	jsonResponse(w, http.StatusCreated, obj)
}

// Download handles GET /storage/{bucket}/{name}.
func (h *StorageHandler) Download(w http.ResponseWriter, r *http.Request) {
	obj, data, err := h.Storage.Open(r.Context(), r.PathValue("bucket"), r.PathValue("name"))
	if errors.Is(err, storage.ErrUnknownBucket) {
		jsonError(w, http.StatusNotFound, "bucket not found")
		return
	}
	if err != nil {
		slog.Error("failed to get object", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get object")
		return
	}
	if obj == nil {
		jsonError(w, http.StatusNotFound, "object not found")
		return
	}

	w.Header().Set("Content-Type", obj.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	// Names are never reused.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(data)
}

// receiveImage reads the multipart "image" field and stores it in bucket.
// On failure it writes the response and returns false.
func receiveImage(w http.ResponseWriter, r *http.Request, svc *storage.Service, bucket string, ownerID int64) (*model.Object, bool) {
	if !storage.ValidBucket(bucket) {
		jsonError(w, http.StatusNotFound, "bucket not found")
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return nil, false
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return nil, false
	}
	defer file.Close()

	obj, err := svc.Upload(r.Context(), bucket, ownerID, file)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		return nil, false
	case errors.Is(err, imaging.ErrUnsupported):
		jsonError(w, http.StatusBadRequest, "image must be JPEG, PNG, or WebP")
		return nil, false
	case errors.Is(err, imaging.ErrCorrupt):
		jsonError(w, http.StatusBadRequest, err.Error())
		return nil, false
	case err != nil:
		storeError(w, err, "store image")
		return nil, false
	}
	return obj, true
}

// attachImage uploads an image and points a row at it with set. The new
// object is removed again if set fails; the old one is removed once set
// succeeds.
func attachImage(w http.ResponseWriter, r *http.Request, svc *storage.Service, bucket string, ownerID int64, oldURL string, set func(ctx context.Context, url string) error) (string, bool) {
	obj, ok := receiveImage(w, r, svc, bucket, ownerID)
	if !ok {
		return "", false
	}

	if err := set(r.Context(), obj.URL); err != nil {
		if rmErr := svc.Remove(r.Context(), obj.URL); rmErr != nil {
			slog.Error("failed to remove orphaned object", "url", obj.URL, "error", rmErr)
		}
		storeError(w, err, "attach image")
		return "", false
	}

	if oldURL != "" && oldURL != obj.URL {
		if err := svc.Remove(r.Context(), oldURL); err != nil {
			slog.Warn("failed to remove replaced image", "url", oldURL, "error", err)
		}
	}
	return obj.URL, true
}
