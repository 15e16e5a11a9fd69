package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"

	"chat-sync/internal/observability"
)

const writeWait = 10 * time.Second

// Feed starts the event stream of a room. The stream must end when ctx
// is cancelled.
type Feed func(ctx context.Context) (<-chan any, error)

type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

type room struct {
	kind    string
	clients map[*websocket.Conn]*client
	last    []byte
	cancel  context.CancelFunc
}

// Hub maintains live rooms. Each room runs one feed, shared by every
// connection that joined it, and broadcasts its events to them.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	logger log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Hub{rooms: make(map[string]*room), logger: logger}
}

// Join adds conn to the room key, starting the room's feed if conn is
// the first member. A late joiner immediately receives the last event.
func (h *Hub) Join(kind, key string, conn *websocket.Conn, info ConnInfo, feed Feed) error {
	h.mu.Lock()
	r, ok := h.rooms[key]
	if !ok {
		h.mu.Unlock()
		ctx, cancel := context.WithCancel(context.Background())
		events, err := feed(ctx)
		if err != nil {
			cancel()
			return err
		}
		h.mu.Lock()
		if r, ok = h.rooms[key]; ok {
			// Another joiner opened the room while feed was starting.
			cancel()
		} else {
			r = &room{kind: kind, clients: make(map[*websocket.Conn]*client), cancel: cancel}
			h.rooms[key] = r
			go h.pump(key, r, events)
		}
	}
	c := &client{conn: conn, info: info}
	r.clients[conn] = c
	last := r.last
	h.mu.Unlock()

	if last != nil {
		if err := c.write(last); err != nil {
			h.drop(key, c, err)
		}
	}
	return nil
}

// Leave removes conn from the room key and stops the room's feed when it
// was the last member.
func (h *Hub) Leave(key string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(r.clients, conn)
	if len(r.clients) == 0 {
		r.cancel()
		delete(h.rooms, key)
	}
}

// Members reports how many connections joined the room key.
func (h *Hub) Members(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[key]; ok {
		return len(r.clients)
	}
	return 0
}

// Broadcast sends event to every member of the room key.
func (h *Hub) Broadcast(key string, event any) {
	h.mu.Lock()
	r := h.rooms[key]
	h.mu.Unlock()
	if r != nil {
		h.broadcast(key, r, event)
	}
}

// broadcast sends event to the members of r, as long as r is still the
// live room for key.
func (h *Hub) broadcast(key string, r *room, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		level.Error(h.logger).Log("msg", "websocket event encode failed", "room", key, "err", err)
		return
	}

	h.mu.Lock()
	if h.rooms[key] != r {
		h.mu.Unlock()
		return
	}
	r.last = payload
	clients := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.drop(key, c, err)
			continue
		}
		observability.IncWSEvent(r.kind, "ws_push")
	}
}

func (h *Hub) pump(key string, r *room, events <-chan any) {
	for event := range events {
		h.broadcast(key, r, event)
	}
}

func (h *Hub) drop(key string, c *client, err error) {
	level.Warn(h.logger).Log("msg", "websocket write error", "room", key, "conn_id", c.info.ConnID, "err", err)
	h.mu.Lock()
	kind := ""
	if r, ok := h.rooms[key]; ok {
		kind = r.kind
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	h.Leave(key, c.conn)
	publishWSEvent(context.Background(), kind, key, "ws_error", c.info, err.Error())
}

func publishWSEvent(ctx context.Context, kind, resource, event string, info ConnInfo, reason string) {
	var durationMS int64
	if !info.ConnectedAt.IsZero() && event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]any{
		"ws": map[string]any{
			"kind":        kind,
			"resource":    resource,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_email": info.UserEmail,
			"device_id":  info.DeviceID,
			"ip":         info.IP,
		},
	}
	ctx = observability.WithRequestID(ctx, info.RequestID)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	})
	observability.IncWSEvent(kind, event)
}

const wsRoutingKey = "ws_events.conversations"
