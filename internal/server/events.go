package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"parking-engine/internal/logging"
	"parking-engine/internal/parking"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	clientBuffer   = 16
)

const (
	EventSnapshot  = "snapshot"
	EventAllocated = "allocated"
	EventExited    = "exited"
)

// Event is pushed to every status feed subscriber after a state change.
type Event struct {
	Type   string         `json:"type"`
	SlotID string         `json:"slot_id,omitempty"`
	Ticket string         `json:"ticket,omitempty"`
	Status parking.Status `json:"status"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans status events out to connected websocket clients. Only Run touches
// the client set.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	drops atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	clients := make(map[*client]bool)
	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				c.close()
			}
			return
		case c := <-h.register:
			clients[c] = true
		case c := <-h.unregister:
			if clients[c] {
				delete(clients, c)
				c.close()
			}
		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer.
					delete(clients, c)
					c.close()
					h.drops.Add(1)
				}
			}
		}
	}
}

// Publish queues event for delivery without blocking the caller.
func (h *Hub) Publish(ctx context.Context, event Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		logging.Error(ctx).Err(err).Str("event", event.Type).Msg("failed to encode status event")
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.drops.Add(1)
		logging.Warn(ctx).Str("event", event.Type).Msg("status event dropped")
	}
}

func (h *Hub) Drops() int64 {
	return h.drops.Load()
}

// subscribe registers c, or reports false once the hub has stopped.
func (h *Hub) subscribe(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unsubscribe(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump discards inbound messages; it only exists to process control
// frames and notice disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.unsubscribe(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(context.Background()).Err(err).Msg("status feed read error")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// StatusFeed upgrades the request and streams status events, starting with a
// snapshot of the current state.
func (h *Handler) StatusFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("status feed upgrade failed")
		return
	}

	snapshot, err := json.Marshal(Event{Type: EventSnapshot, Status: h.lot.Status(ctx)})
	if err != nil {
		logging.Error(ctx).Err(err).Msg("failed to encode status snapshot")
		conn.Close()
		return
	}

	c := &client{hub: h.hub, conn: conn, send: make(chan []byte, clientBuffer)}
	c.send <- snapshot
	if !h.hub.subscribe(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
