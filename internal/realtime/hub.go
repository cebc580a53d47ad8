// Package realtime fans out row changes to subscribers as an ordered change
// feed.
package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Change events.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// AllTables subscribes to every table.
const AllTables = "*"

// DefaultPingInterval is how often websocket clients are pinged.
const DefaultPingInterval = 54 * time.Second

// DefaultBuffer is the per-subscriber queue length used when NewHub gets zero.
const DefaultBuffer = 64

// Change is one row change as delivered to subscribers.
type Change struct {
	Seq             int64          `json:"seq"`
	Table           string         `json:"table"`
	Event           string         `json:"event"`
	Record          map[string]any `json:"record"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}

// Subscription receives changes on C until it is closed by Unsubscribe or
// because it fell behind.
type Subscription struct {
	C <-chan Change

	ch     chan Change
	id     string
	userID int64
	table  string
	filter Filter
	lagged atomic.Bool
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string {
	return s.id
}

// Lagged reports whether the subscription was dropped for not keeping up.
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// Hub is an in-process publish/subscribe hub for row changes.
type Hub struct {
	mu     sync.Mutex
	seq    int64
	subs   map[*Subscription]struct{}
	buffer int
	ping   time.Duration
	now    func() time.Time
}

// NewHub creates a hub whose subscribers buffer up to buffer changes.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		ping:   DefaultPingInterval,
		now:    time.Now,
	}
}

// Subscribe registers userID for changes on table (or AllTables) that pass
// filter.
func (h *Hub) Subscribe(userID int64, table string, filter Filter) *Subscription {
	ch := make(chan Change, h.buffer)
	s := &Subscription{C: ch, ch: ch, id: uuid.NewString(), userID: userID, table: table, filter: filter}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// SetPingInterval changes the websocket keep-alive period. Clients that
// don't answer within slightly more than one period are disconnected.
func (h *Hub) SetPingInterval(d time.Duration) {
	if d > 0 {
		h.mu.Lock()
		h.ping = d
		h.mu.Unlock()
	}
}

func (h *Hub) pingInterval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ping
}

// Unsubscribe removes a subscription and closes its channel. It is safe to
// call more than once.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish assigns the next sequence number to a change and delivers it to
// matching subscribers. A non-empty audience limits delivery to those users.
// Subscribers whose buffer is full are dropped rather than waited on.
func (h *Hub) Publish(table, event string, record any, audience ...int64) (int64, error) {
	row, err := toRecord(record)
	if err != nil {
		return 0, fmt.Errorf("encoding %s record: %w", table, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	c := Change{Seq: h.seq, Table: table, Event: event, Record: row, CommitTimestamp: h.now().UTC()}

	for s := range h.subs {
		if s.table != AllTables && s.table != table {
			continue
		}
		if len(audience) > 0 && !slices.Contains(audience, s.userID) {
			continue
		}
		if !s.filter.Match(row) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			s.lagged.Store(true)
			delete(h.subs, s)
			close(s.ch)
			slog.Warn("realtime subscriber dropped", "subscription", s.id, "user_id", s.userID, "table", s.table, "seq", c.Seq)
		}
	}
	return c.Seq, nil
}

// toRecord turns a row value into its JSON object form so filters see the
// same column names clients do.
func toRecord(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}
