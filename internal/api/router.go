package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/kmetija/internal/auth"
	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/notify"
	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/storage"
)

// Deps are the services the API is built on. Hub and Notifier may be nil.
type Deps struct {
	DB       *sql.DB
	Signer   *auth.Signer
	Hub      *realtime.Hub
	Notifier *notify.Notifier
	Storage  *storage.Service
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	ev := events{hub: d.Hub, notifier: d.Notifier}

	authHandler := &AuthHandler{DB: d.DB, Signer: d.Signer}
	usersHandler := &UsersHandler{DB: d.DB}
	profileHandler := &ProfileHandler{DB: d.DB, Storage: d.Storage, events: ev}
	inventoryHandler := &InventoryHandler{DB: d.DB, Storage: d.Storage, events: ev}
	productsHandler := &ProductsHandler{DB: d.DB, Storage: d.Storage, events: ev}
	offersHandler := &OffersHandler{DB: d.DB, events: ev}
	equipmentHandler := &EquipmentHandler{DB: d.DB, Storage: d.Storage, events: ev}
	borrowHandler := &BorrowHandler{DB: d.DB, events: ev}
	messagesHandler := &MessagesHandler{DB: d.DB, events: ev}
	notificationsHandler := &NotificationsHandler{DB: d.DB, events: ev}
	storageHandler := &StorageHandler{Storage: d.Storage}

	authMW := AuthMiddleware(d.Signer, d.DB, false)
	requireAdmin := RequireRole(model.RoleAdmin)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	// Public.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /storage/{bucket}/{name}", storageHandler.Download)

	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Profiles.
	mux.Handle("GET /api/profile", authed(profileHandler.GetOwn))
	mux.Handle("PUT /api/profile", authed(profileHandler.Update))
	mux.Handle("PUT /api/profile/avatar", authed(profileHandler.UploadAvatar))
	mux.Handle("GET /api/profiles/{id}", authed(profileHandler.Get))

	// Users (admin only).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("POST /api/users", admin(usersHandler.Create))
	mux.Handle("GET /api/users/{id}", admin(usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", admin(usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", admin(usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", admin(usersHandler.Delete))

	// Inventory (own items only).
	mux.Handle("GET /api/inventory", authed(inventoryHandler.List))
	mux.Handle("POST /api/inventory", authed(inventoryHandler.Create))
	mux.Handle("GET /api/inventory/{id}", authed(inventoryHandler.Get))
	mux.Handle("PUT /api/inventory/{id}", authed(inventoryHandler.Update))
	mux.Handle("DELETE /api/inventory/{id}", authed(inventoryHandler.Delete))
	mux.Handle("PUT /api/inventory/{id}/image", authed(inventoryHandler.UploadImage))
	mux.Handle("POST /api/inventory/{id}/sell", authed(inventoryHandler.Sell))

	// Marketplace.
	mux.Handle("GET /api/products", authed(productsHandler.List))
	mux.Handle("POST /api/products", authed(productsHandler.Create))
	mux.Handle("GET /api/products/{id}", authed(productsHandler.Get))
	mux.Handle("PUT /api/products/{id}", authed(productsHandler.Update))
	mux.Handle("DELETE /api/products/{id}", authed(productsHandler.Delete))
	mux.Handle("PUT /api/products/{id}/image", authed(productsHandler.UploadImage))
	mux.Handle("POST /api/products/{id}/offers", authed(offersHandler.Create))
	mux.Handle("GET /api/offers", authed(offersHandler.List))
	mux.Handle("POST /api/offers/{id}/accept", authed(offersHandler.Accept))
	mux.Handle("POST /api/offers/{id}/reject", authed(offersHandler.Reject))
	mux.Handle("POST /api/offers/{id}/cancel", authed(offersHandler.Cancel))

	// Lending.
	mux.Handle("GET /api/equipment", authed(equipmentHandler.List))
	mux.Handle("POST /api/equipment", authed(equipmentHandler.Create))
	mux.Handle("GET /api/equipment/{id}", authed(equipmentHandler.Get))
	mux.Handle("PUT /api/equipment/{id}", authed(equipmentHandler.Update))
	mux.Handle("DELETE /api/equipment/{id}", authed(equipmentHandler.Delete))
	mux.Handle("PUT /api/equipment/{id}/image", authed(equipmentHandler.UploadImage))
	mux.Handle("POST /api/equipment/{id}/borrow", authed(borrowHandler.Request))
	mux.Handle("GET /api/borrow-requests", authed(borrowHandler.List))
	mux.Handle("GET /api/borrow-requests/{id}", authed(borrowHandler.Get))
	mux.Handle("POST /api/borrow-requests/{id}/accept", authed(borrowHandler.Accept))
	mux.Handle("POST /api/borrow-requests/{id}/decline", authed(borrowHandler.Decline))
	mux.Handle("POST /api/borrow-requests/{id}/cancel", authed(borrowHandler.Cancel))
	mux.Handle("POST /api/borrow-requests/{id}/return", authed(borrowHandler.Return))
	mux.Handle("GET /api/borrow-requests/{id}/messages", authed(borrowHandler.ListMessages))
	mux.Handle("POST /api/borrow-requests/{id}/messages", authed(borrowHandler.SendMessage))

	// Chat.
	mux.Handle("GET /api/messages", authed(messagesHandler.Conversations))
	mux.Handle("GET /api/messages/{user}", authed(messagesHandler.List))
	mux.Handle("POST /api/messages/{user}", authed(messagesHandler.Send))
	mux.Handle("POST /api/messages/{user}/read", authed(messagesHandler.MarkRead))

	// Notifications.
	mux.Handle("GET /api/notifications", authed(notificationsHandler.List))
	mux.Handle("POST /api/notifications/{id}/read", authed(notificationsHandler.MarkRead))
	mux.Handle("POST /api/notifications/read-all", authed(notificationsHandler.MarkAllRead))

	// Storage.
	mux.Handle("POST /api/storage/{bucket}", authed(storageHandler.Upload))

	// Realtime. Browsers can't set headers on websocket requests.
	if d.Hub != nil {
		queryAuth := AuthMiddleware(d.Signer, d.DB, true)
		mux.Handle("GET /api/realtime", queryAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d.Hub.ServeWS(w, r, GetClaims(r.Context()).UserID)
		})))
	}

	return mux
}
