package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Tables clients may subscribe to.
var Tables = map[string]bool{
	AllTables:          true,
	"equipment":        true,
	"borrow_requests":  true,
	"lending_messages": true,
	"inventory_items":  true,
	"products":         true,
	"offers":           true,
	"messages":         true,
	"notifications":    true,
	"profiles":         true,
}

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// ServeWS upgrades the request to a websocket and streams changes for the
// table and filter named in the query string to userID until either side
// closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID int64) {
	table := r.URL.Query().Get("table")
	if table == "" {
		table = AllTables
	}
	if !Tables[table] {
		http.Error(w, "unknown table", http.StatusBadRequest)
		return
	}
	filter, err := ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.Subscribe(userID, table, filter)
	defer h.Unsubscribe(sub)

	slog.Info("realtime subscribed", "subscription", sub.ID(), "user_id", userID, "table", table, "filter", filter.String())

	ping := h.pingInterval()
	done := make(chan struct{})
	go readPump(conn, ping*10/9, done)

	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	for {
		select {
		case c, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				if sub.Lagged() {
					msg = websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber lagged")
				}
				conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if err := conn.WriteJSON(c); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// readPump consumes control frames so pongs and close messages are handled.
// Clients don't send data; anything they do send is discarded.
func readPump(conn *websocket.Conn, pongWait time.Duration, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
