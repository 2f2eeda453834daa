// README: Registry of live driver websocket connections.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"courier/internal/types"
)

const (
	pingPeriod   = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 5 * time.Second
	sendBuffered = 16
)

// Conn is the subset of *websocket.Conn the hub drives.
type Conn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (int, []byte, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type client struct {
	conn Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub keeps every open socket per driver. A driver may hold several (phone
// and tablet); a send reaches all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[types.ID]map[*client]struct{}
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: make(map[types.ID]map[*client]struct{}), log: log}
}

// Serve registers conn for driverID and blocks until the peer goes away or
// ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, driverID types.ID, conn Conn) {
	c := &client{conn: conn, send: make(chan any, sendBuffered), done: make(chan struct{})}
	h.add(driverID, c)
	defer h.remove(driverID, c)
	defer c.close()

	go h.writer(c)
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debug("driver socket closed", "driver_id", driverID, "error", err)
			return
		}
	}
}

func (h *Hub) writer(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteJSON(v); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

// Send queues v on every socket of driverID and returns how many accepted it.
// A socket whose buffer is full is skipped rather than waited on.
func (h *Hub) Send(driverID types.ID, v any) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients[driverID] {
		select {
		case <-c.done:
		case c.send <- v:
			n++
		default:
			h.log.Warn("driver socket buffer full, dropping message", "driver_id", driverID)
		}
	}
	return n
}

func (h *Hub) Connected(driverID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[driverID])
}

// Close disconnects every socket.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[types.ID]map[*client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.close()
		}
	}
}

func (h *Hub) add(driverID types.ID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[driverID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[driverID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(driverID types.ID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[driverID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, driverID)
	}
}
