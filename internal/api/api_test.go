package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/kmetija/internal/auth"
	"github.com/erazemk/kmetija/internal/db"
	"github.com/erazemk/kmetija/internal/model"
	"github.com/erazemk/kmetija/internal/notify"
	"github.com/erazemk/kmetija/internal/realtime"
	"github.com/erazemk/kmetija/internal/storage"
	"github.com/erazemk/kmetija/internal/store"
)

const testJWTSecret = "test-secret-that-is-long-enough"

type testServer struct {
	*httptest.Server
	db  *sql.DB
	hub *realtime.Hub
}

func setupTestServer(t *testing.T) (*testServer, string) {
	t.Helper()
	database := db.NewTestDB(t)
	hub := realtime.NewHub(realtime.DefaultBuffer)

	router := NewRouter(Deps{
		DB:       database,
		Signer:   auth.NewSigner(testJWTSecret, time.Hour),
		Hub:      hub,
		Notifier: notify.New(database, hub, nil, 0),
		Storage:  &storage.Service{DB: database},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = store.CreateUser(context.Background(), database, "admin", string(hash), model.RoleAdmin)
	require.NoError(t, err)

	ts := &testServer{Server: server, db: database, hub: hub}
	return ts, ts.login(t, "admin", "password")
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	var resp loginResponse
	status := s.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "password": password,
	}, &resp)
	require.Equal(t, http.StatusOK, status, "login %s", username)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// register signs up a farmer and returns their token and user ID.
func (s *testServer) register(t *testing.T, username string) (string, int64) {
	t.Helper()
	var resp loginResponse
	status := s.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":  username,
		"password":  "correct-horse",
		"farm_name": username + " farm",
	}, &resp)
	require.Equal(t, http.StatusCreated, status, "register %s", username)
	require.NotNil(t, resp.User)
	return resp.Token, resp.User.ID
}

// call sends a JSON request and decodes the response into out when it is
// not nil. It returns the status code.
func (s *testServer) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) upload(t *testing.T, path, token string, data []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := range 40 {
		for y := range 30 {
			img.Set(x, y, color.RGBA{R: 40, G: 160, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func tomorrow() string {
	return time.Now().AddDate(0, 0, 1).Format(model.DateLayout)
}

func inDays(n int) string {
	return time.Now().AddDate(0, 0, n).Format(model.DateLayout)
}

func TestLoginEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	status := server.call(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "admin", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = server.call(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "nobody", "password": "password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = server.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRegisterAndLogout(t *testing.T) {
	server, _ := setupTestServer(t)
	token, id := server.register(t, "marija")

	var profile model.Profile
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/profile", token, nil, &profile))
	assert.Equal(t, id, profile.UserID)
	assert.Equal(t, "marija farm", profile.FarmName)

	// Usernames are unique.
	status := server.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "marija", "password": "another-password",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Short passwords are rejected.
	status = server.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "janez", "password": "short",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	require.Equal(t, http.StatusOK, server.call(t, http.MethodPost, "/api/auth/logout", token, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, server.call(t, http.MethodGet, "/api/profile", token, nil, nil),
		"revoked token must be rejected")

	// A fresh login still works.
	fresh := server.login(t, "marija", "correct-horse")
	assert.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/profile", fresh, nil, nil))
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	server, _ := setupTestServer(t)

	for _, path := range []string{"/api/profile", "/api/inventory", "/api/products", "/api/notifications"} {
		assert.Equal(t, http.StatusUnauthorized, server.call(t, http.MethodGet, path, "", nil, nil), path)
		assert.Equal(t, http.StatusUnauthorized, server.call(t, http.MethodGet, path, "garbage", nil, nil), path)
	}
}

func TestUsersAdminOnly(t *testing.T) {
	server, adminToken := setupTestServer(t)
	userToken, userID := server.register(t, "kmet")

	assert.Equal(t, http.StatusForbidden, server.call(t, http.MethodGet, "/api/users", userToken, nil, nil))

	var users []model.User
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/users", adminToken, nil, &users))
	assert.Len(t, users, 2)

	// Promotion takes effect on the next request without a new token.
	require.Equal(t, http.StatusOK, server.call(t, http.MethodPut, fmt.Sprintf("/api/users/%d", userID), adminToken,
		map[string]string{"role": model.RoleAdmin}, nil))
	assert.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/users", userToken, nil, nil))

	// Deleted users lose access immediately.
	require.Equal(t, http.StatusOK, server.call(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", userID), adminToken, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, server.call(t, http.MethodGet, "/api/profile", userToken, nil, nil))
}

func TestInventoryIsPrivate(t *testing.T) {
	server, _ := setupTestServer(t)
	owner, _ := server.register(t, "owner")
	other, _ := server.register(t, "other")

	var item model.InventoryItem
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, "/api/inventory", owner, map[string]any{
		"name": "Potatoes", "quantity": 100, "unit": "kg", "category": "vegetables",
	}, &item))

	path := fmt.Sprintf("/api/inventory/%d", item.ID)
	assert.Equal(t, http.StatusOK, server.call(t, http.MethodGet, path, owner, nil, nil))
	assert.Equal(t, http.StatusNotFound, server.call(t, http.MethodGet, path, other, nil, nil))
	assert.Equal(t, http.StatusNotFound, server.call(t, http.MethodDelete, path, other, nil, nil))

	var list []model.InventoryItem
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/inventory", other, nil, &list))
	assert.Empty(t, list)

	// Expiry before harvest is rejected.
	status := server.call(t, http.MethodPost, "/api/inventory", owner, map[string]any{
		"name": "Milk", "quantity": 10, "unit": "l",
		"harvest_date": "2024-06-10", "expiry_date": "2024-06-01",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	require.Equal(t, http.StatusOK, server.call(t, http.MethodDelete, path, owner, nil, nil))
	assert.Equal(t, http.StatusNotFound, server.call(t, http.MethodGet, path, owner, nil, nil))
}

func TestMarketplaceFlow(t *testing.T) {
	server, _ := setupTestServer(t)
	seller, sellerID := server.register(t, "seller")
	buyer, buyerID := server.register(t, "buyer")

	var item model.InventoryItem
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, "/api/inventory", seller, map[string]any{
		"name": "Apples", "quantity": 50, "unit": "kg",
	}, &item))

	var sold sellResponse
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, fmt.Sprintf("/api/inventory/%d/sell", item.ID), seller,
		map[string]any{"quantity": 20, "price": 1.5}, &sold))
	assert.InDelta(t, 30, sold.Item.Quantity, 0.001)
	assert.InDelta(t, 20, sold.Product.Quantity, 0.001)
	assert.Equal(t, sellerID, sold.Product.SellerID)

	// Selling more than is in stock fails.
	assert.Equal(t, http.StatusBadRequest, server.call(t, http.MethodPost, fmt.Sprintf("/api/inventory/%d/sell", item.ID), seller,
		map[string]any{"quantity": 31, "price": 1}, nil))

	var products []model.Product
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/products?q=appl", buyer, nil, &products))
	require.Len(t, products, 1)

	offersPath := fmt.Sprintf("/api/products/%d/offers", sold.Product.ID)
	assert.Equal(t, http.StatusBadRequest, server.call(t, http.MethodPost, offersPath, seller,
		map[string]any{"quantity": 1, "price": 1}, nil), "sellers can't buy their own produce")

	var offer model.Offer
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, offersPath, buyer,
		map[string]any{"quantity": 20, "price": 28}, &offer))
	assert.Equal(t, model.OfferStatusPending, offer.Status)

	acceptPath := fmt.Sprintf("/api/offers/%d/accept", offer.ID)
	assert.Equal(t, http.StatusForbidden, server.call(t, http.MethodPost, acceptPath, buyer, nil, nil))
	require.Equal(t, http.StatusOK, server.call(t, http.MethodPost, acceptPath, seller, nil, &offer))
	assert.Equal(t, model.OfferStatusAccepted, offer.Status)
	assert.Equal(t, http.StatusConflict, server.call(t, http.MethodPost, acceptPath, seller, nil, nil))

	var product model.Product
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, fmt.Sprintf("/api/products/%d", sold.Product.ID), buyer, nil, &product))
	assert.Equal(t, model.ProductStatusSoldOut, product.Status)

	// Both sides were told.
	n, err := store.CountUnreadNotifications(context.Background(), server.db, sellerID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.CountUnreadNotifications(context.Background(), server.db, buyerID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLendingFlow(t *testing.T) {
	server, _ := setupTestServer(t)
	owner, ownerID := server.register(t, "owner")
	borrower, borrowerID := server.register(t, "borrower")
	stranger, _ := server.register(t, "stranger")

	var tractor model.Equipment
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, "/api/equipment", owner,
		map[string]any{"name": "Tractor", "category": "machinery"}, &tractor))
	assert.Equal(t, model.EquipmentStatusAvailable, tractor.Status)

	borrowPath := fmt.Sprintf("/api/equipment/%d/borrow", tractor.ID)
	assert.Equal(t, http.StatusBadRequest, server.call(t, http.MethodPost, borrowPath, owner,
		map[string]any{"start_date": tomorrow(), "end_date": inDays(3)}, nil), "owners can't borrow their own equipment")
	assert.Equal(t, http.StatusBadRequest, server.call(t, http.MethodPost, borrowPath, borrower,
		map[string]any{"start_date": inDays(3), "end_date": tomorrow()}, nil), "end before start")

	var req model.BorrowRequest
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, borrowPath, borrower,
		map[string]any{"start_date": tomorrow(), "end_date": inDays(3), "message": "For the hay"}, &req))
	assert.Equal(t, model.BorrowStatusPending, req.Status)
	assert.Equal(t, ownerID, req.OwnerID)

	// The listing is held by the pending request.
	assert.Equal(t, http.StatusConflict, server.call(t, http.MethodPost, borrowPath, stranger,
		map[string]any{"start_date": tomorrow(), "end_date": inDays(2)}, nil))
	var e model.Equipment
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, fmt.Sprintf("/api/equipment/%d", tractor.ID), stranger, nil, &e))
	assert.Equal(t, model.EquipmentStatusRequested, e.Status)
	assert.False(t, e.Available)

	reqPath := fmt.Sprintf("/api/borrow-requests/%d", req.ID)
	assert.Equal(t, http.StatusNotFound, server.call(t, http.MethodGet, reqPath, stranger, nil, nil))
	assert.Equal(t, http.StatusNotFound, server.call(t, http.MethodPost, reqPath+"/accept", stranger, nil, nil))
	assert.Equal(t, http.StatusForbidden, server.call(t, http.MethodPost, reqPath+"/accept", borrower, nil, nil))

	// Thread between the two sides.
	var msg model.LendingMessage
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, reqPath+"/messages", owner,
		map[string]string{"body": "Pick it up at 8"}, &msg))
	assert.Equal(t, ownerID, msg.SenderID)
	assert.Equal(t, http.StatusForbidden, server.call(t, http.MethodGet, reqPath+"/messages", stranger, nil, nil))
	var thread []model.LendingMessage
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, reqPath+"/messages", borrower, nil, &thread))
	require.Len(t, thread, 1)

	require.Equal(t, http.StatusOK, server.call(t, http.MethodPost, reqPath+"/accept", owner, nil, &req))
	assert.Equal(t, model.BorrowStatusAccepted, req.Status)
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, fmt.Sprintf("/api/equipment/%d", tractor.ID), owner, nil, &e))
	assert.Equal(t, model.EquipmentStatusBorrowed, e.Status)
	assert.Equal(t, http.StatusConflict, server.call(t, http.MethodDelete, fmt.Sprintf("/api/equipment/%d", tractor.ID), owner, nil, nil))

	require.Equal(t, http.StatusOK, server.call(t, http.MethodPost, reqPath+"/return", borrower, nil, &req))
	assert.Equal(t, model.BorrowStatusReturned, req.Status)
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, fmt.Sprintf("/api/equipment/%d", tractor.ID), owner, nil, &e))
	assert.Equal(t, model.EquipmentStatusAvailable, e.Status)
	assert.Equal(t, ownerID, e.OwnerID)

	var list []model.BorrowRequest
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/borrow-requests?role=borrower", borrower, nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, borrowerID, list[0].BorrowerID)

	// Owner: request and return. Borrower: lending message and acceptance.
	var notifications notificationsResponse
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/notifications", owner, nil, &notifications))
	assert.Equal(t, 2, notifications.Unread)
	require.Equal(t, http.StatusOK, server.call(t, http.MethodPost, "/api/notifications/read-all", owner, nil, nil))
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/notifications?unread=true", owner, nil, &notifications))
	assert.Equal(t, 0, notifications.Unread)
}

func TestDeclineFreesListing(t *testing.T) {
	server, _ := setupTestServer(t)
	owner, _ := server.register(t, "owner")
	borrower, _ := server.register(t, "borrower")

	var plough model.Equipment
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, "/api/equipment", owner,
		map[string]any{"name": "Plough"}, &plough))

	var req model.BorrowRequest
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, fmt.Sprintf("/api/equipment/%d/borrow", plough.ID), borrower,
		map[string]any{"start_date": tomorrow(), "end_date": tomorrow()}, &req))
	require.Equal(t, http.StatusOK, server.call(t, http.MethodPost, fmt.Sprintf("/api/borrow-requests/%d/decline", req.ID), owner, nil, &req))
	assert.Equal(t, model.BorrowStatusDeclined, req.Status)

	var e model.Equipment
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, fmt.Sprintf("/api/equipment/%d", plough.ID), borrower, nil, &e))
	assert.Equal(t, model.EquipmentStatusAvailable, e.Status)
	assert.True(t, e.Available)

	// A second request may now be made.
	assert.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, fmt.Sprintf("/api/equipment/%d/borrow", plough.ID), borrower,
		map[string]any{"start_date": tomorrow(), "end_date": inDays(2)}, nil))
}

func TestChatFlow(t *testing.T) {
	server, _ := setupTestServer(t)
	ana, anaID := server.register(t, "ana")
	bor, borID := server.register(t, "bor")

	assert.Equal(t, http.StatusBadRequest, server.call(t, http.MethodPost, fmt.Sprintf("/api/messages/%d", anaID), ana,
		map[string]string{"body": "hello me"}, nil))
	assert.Equal(t, http.StatusNotFound, server.call(t, http.MethodPost, "/api/messages/9999", ana,
		map[string]string{"body": "anyone?"}, nil))

	for _, body := range []string{"Do you have eggs?", "Two dozen please"} {
		require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, fmt.Sprintf("/api/messages/%d", borID), ana,
			map[string]string{"body": body}, nil))
	}

	var convs []model.Conversation
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/messages", bor, nil, &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, anaID, convs[0].PartnerID)
	assert.Equal(t, 2, convs[0].Unread)
	assert.Equal(t, "Two dozen please", convs[0].LastMessage.Body)

	var msgs []model.Message
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, fmt.Sprintf("/api/messages/%d?limit=1", anaID), bor, nil, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Do you have eggs?", msgs[0].Body)
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, fmt.Sprintf("/api/messages/%d?after=%d", anaID, msgs[0].ID), bor, nil, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Two dozen please", msgs[0].Body)

	require.Equal(t, http.StatusOK, server.call(t, http.MethodPost, fmt.Sprintf("/api/messages/%d/read", anaID), bor, nil, nil))
	require.Equal(t, http.StatusOK, server.call(t, http.MethodGet, "/api/messages", bor, nil, &convs))
	assert.Equal(t, 0, convs[0].Unread)
}

func TestStorageUploadAndDownload(t *testing.T) {
	server, token := setupTestServer(t)

	resp, body := server.upload(t, "/api/storage/"+storage.BucketAvatars, token, testPNG(t))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var obj model.Object
	require.NoError(t, json.Unmarshal(body, &obj))
	assert.Equal(t, "image/jpeg", obj.MIME)
	require.True(t, strings.HasPrefix(obj.URL, storage.URLPrefix+storage.BucketAvatars+"/"))

	// Objects are public.
	get, err := http.Get(server.URL + obj.URL)
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "image/jpeg", get.Header.Get("Content-Type"))

	resp, _ = server.upload(t, "/api/storage/secrets", token, testPNG(t))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = server.upload(t, "/api/storage/"+storage.BucketAvatars, token, []byte("GIF89a not really"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	missing, err := http.Get(server.URL + storage.URL(storage.BucketAvatars, "missing.jpg"))
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestEquipmentImageReplacesOld(t *testing.T) {
	server, _ := setupTestServer(t)
	owner, _ := server.register(t, "owner")

	var e model.Equipment
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, "/api/equipment", owner,
		map[string]any{"name": "Baler"}, &e))

	path := fmt.Sprintf("/api/equipment/%d/image", e.ID)
	upload := func() model.Equipment {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("image", "baler.png")
		require.NoError(t, err)
		_, err = fw.Write(testPNG(t))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPut, server.URL+path, &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+owner)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out model.Equipment
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	first := upload()
	second := upload()
	require.NotEqual(t, first.ImageURL, second.ImageURL)

	old, err := http.Get(server.URL + first.ImageURL)
	require.NoError(t, err)
	old.Body.Close()
	assert.Equal(t, http.StatusNotFound, old.StatusCode)

	current, err := http.Get(server.URL + second.ImageURL)
	require.NoError(t, err)
	current.Body.Close()
	assert.Equal(t, http.StatusOK, current.StatusCode)
}

func wsURL(server *testServer, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/api/realtime?" + query
}

func TestRealtimeStreamsChanges(t *testing.T) {
	server, _ := setupTestServer(t)
	seller, sellerID := server.register(t, "seller")
	watcher, _ := server.register(t, "watcher")

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "table=products&access_token="+watcher), nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	require.Eventually(t, func() bool { return server.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	var p model.Product
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, "/api/products", seller,
		map[string]any{"name": "Honey", "quantity": 10, "unit": "jar", "price": 8}, &p))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var change realtime.Change
	require.NoError(t, conn.ReadJSON(&change))
	assert.Equal(t, "products", change.Table)
	assert.Equal(t, realtime.EventInsert, change.Event)
	assert.Equal(t, json.Number(fmt.Sprint(sellerID)), toNumber(change.Record["seller_id"]))
	assert.Equal(t, "Honey", change.Record["name"])
}

func TestRealtimeNotificationsArePrivate(t *testing.T) {
	server, _ := setupTestServer(t)
	owner, _ := server.register(t, "owner")
	borrower, _ := server.register(t, "borrower")
	stranger, _ := server.register(t, "stranger")

	dial := func(token string) *websocket.Conn {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "table=notifications&access_token="+token), nil)
		require.NoError(t, err)
		resp.Body.Close()
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	ownerConn := dial(owner)
	strangerConn := dial(stranger)
	require.Eventually(t, func() bool { return server.hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	var e model.Equipment
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, "/api/equipment", owner,
		map[string]any{"name": "Trailer"}, &e))
	require.Equal(t, http.StatusCreated, server.call(t, http.MethodPost, fmt.Sprintf("/api/equipment/%d/borrow", e.ID), borrower,
		map[string]any{"start_date": tomorrow(), "end_date": tomorrow()}, nil))

	require.NoError(t, ownerConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var change realtime.Change
	require.NoError(t, ownerConn.ReadJSON(&change))
	assert.Equal(t, "notifications", change.Table)
	assert.Equal(t, model.NotifyBorrowRequest, change.Record["type"])

	require.NoError(t, strangerConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	err := strangerConn.ReadJSON(&change)
	assert.Error(t, err, "stranger must not see the owner's notification")
}

func TestRealtimeRejectsBadRequests(t *testing.T) {
	server, token := setupTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "table=products"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(server, "table=secrets&access_token="+token), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(server, "table=products&filter=bogus&access_token="+token), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// toNumber normalizes a decoded JSON number for comparison.
func toNumber(v any) json.Number {
	switch n := v.(type) {
	case json.Number:
		return n
	case float64:
		return json.Number(fmt.Sprint(int64(n)))
	default:
		return json.Number(fmt.Sprint(v))
	}
}
