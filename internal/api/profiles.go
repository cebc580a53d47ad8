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

// ProfileHandler handles farm profile endpoints.
type ProfileHandler struct {
	DB      *sql.DB
	Storage *storage.Service
	events
}

// GetOwn handles GET /api/profile.
func (h *ProfileHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, GetClaims(r.Context()).UserID, true)
}

// Get handles GET /api/profiles/{id}. E-mail addresses are only shown to
// their owner.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "profile")
	if !ok {
		return
	}
	h.write(w, r, id, GetClaims(r.Context()).UserID == id)
}

func (h *ProfileHandler) write(w http.ResponseWriter, r *http.Request, userID int64, own bool) {
	p, err := store.GetProfile(r.Context(), h.DB, userID)
	if err != nil {
		storeError(w, err, "get profile")
		return
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "profile not found")
		return
	}
	if !own {
		p.Email = ""
	}
	jsonResponse(w, http.StatusOK, p)
}

// Update handles PUT /api/profile.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req model.ProfileInput
	if !decodeInput(w, r, &req) {
		return
	}

	p, err := store.UpdateProfile(r.Context(), h.DB, claims.UserID, req)
	if err != nil {
		storeError(w, err, "update profile")
		return
	}

	slog.Info("profile updated", "user", claims.Username)
	h.publishProfile(p)
	jsonResponse(w, http.StatusOK, p)
}

// UploadAvatar handles PUT /api/profile/avatar.
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	current, err := store.GetProfile(r.Context(), h.DB, claims.UserID)
	if err != nil {
		storeError(w, err, "get profile")
		return
	}
	if current == nil {
		jsonError(w, http.StatusNotFound, "profile not found")
		return
	}

	_, ok := attachImage(w, r, h.Storage, storage.BucketAvatars, claims.UserID, current.AvatarURL,
		func(ctx context.Context, url string) error {
			return store.SetAvatar(ctx, h.DB, claims.UserID, url)
		})
	if !ok {
		return
	}

	p, err := store.GetProfile(r.Context(), h.DB, claims.UserID)
	if err != nil {
		storeError(w, err, "get profile")
		return
	}
	slog.Info("avatar updated", "user", claims.Username)
	h.publishProfile(p)
	jsonResponse(w, http.StatusOK, p)
}

// publishProfile broadcasts a profile change without the e-mail address.
func (h *ProfileHandler) publishProfile(p *model.Profile) {
	public := *p
	public.Email = ""
	h.publish("profiles", realtime.EventUpdate, public)
}
