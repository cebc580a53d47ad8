package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/store"
)

// UsersHandler serves the admin-only account endpoints.
type UsersHandler struct {
	DB *sql.DB
}

// createUserRequest lets an admin set up an account with its farm profile
// in one call. Profile fields are optional.
type createUserRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
	Password    string `json:"password" validate:"required"`
	Role        string `json:"role" validate:"required,oneof=admin user"`
	DisplayName string `json:"display_name" validate:"max=100"`
	FarmName    string `json:"farm_name" validate:"max=200"`
	Location    string `json:"location" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin user"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		storeError(w, err, "list users")
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(users))
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeInput(w, r, &req) {
		return
	}
	hash, ok := hashPassword(w, req.Password)
	if !ok {
		return
	}

	user, err := store.CreateUserWithProfile(r.Context(), h.DB, req.Username, hash, req.Role, model.ProfileInput{
		DisplayName: req.DisplayName,
		FarmName:    req.FarmName,
		Location:    req.Location,
		Email:       req.Email,
	})
	if err != nil {
		storeError(w, err, "create user")
		return
	}

	slog.Info("user created", "admin", GetClaims(r.Context()).Username, "username", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	if user, ok := h.load(w, r); ok {
		jsonResponse(w, http.StatusOK, user)
	}
}

// Update changes a user's role. Admins cannot demote themselves, so the
// instance always keeps at least the caller as administrator.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeInput(w, r, &req) {
		return
	}

	admin := GetClaims(r.Context())
	if admin.UserID == user.ID && req.Role != model.RoleAdmin {
		jsonError(w, http.StatusBadRequest, "cannot demote yourself")
		return
	}
	if err := store.UpdateUser(r.Context(), h.DB, user.ID, req.Role); err != nil {
		storeError(w, err, "update user")
		return
	}

	slog.Info("user role changed", "admin", admin.Username, "username", user.Username, "from", user.Role, "to", req.Role)
	user.Role = req.Role
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeInput(w, r, &req) {
		return
	}
	hash, ok := hashPassword(w, req.Password)
	if !ok {
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, user.ID, hash); err != nil {
		storeError(w, err, "reset password")
		return
	}

	slog.Info("password reset", "admin", GetClaims(r.Context()).Username, "username", user.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete soft-deletes a user. The store refuses while they are part of
// an accepted loan on either side.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}

	admin := GetClaims(r.Context())
	if admin.UserID == user.ID {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}
	if err := store.DeleteUser(r.Context(), h.DB, user.ID); err != nil {
		storeError(w, err, "delete user")
		return
	}

	slog.Info("user deleted", "admin", admin.Username, "username", user.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// load resolves the {id} path value to a user, writing a 400 or 404 when
// that fails.
func (h *UsersHandler) load(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return nil, false
	}
	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get user")
		return nil, false
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
}
