package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lazypower/memoria/internal/store"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	readLimit  = 512
	bufferSize = 1024
)

// Message is the JSON frame pushed to websocket clients.
type Message struct {
	Event        string             `json:"event"`
	Notification store.Notification `json:"notification"`
}

// Conn is one websocket connection belonging to a user.
type Conn struct {
	ws     *websocket.Conn
	userID string

	mu       sync.Mutex // serialises writes
	lastSeen time.Time
}

func (c *Conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Conn) seen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// Hub tracks websocket connections per user and pushes notifications to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{} // userID -> connections

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a Hub. allowOrigin decides which browser origins may
// connect; nil accepts all.
func NewHub(logger *zap.Logger, allowOrigin func(origin string) bool) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		conns:  make(map[string]map[*Conn]struct{}),
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  bufferSize,
		WriteBufferSize: bufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowOrigin == nil {
				return true
			}
			return allowOrigin(origin)
		},
	}
	return h
}

func (h *Hub) add(userID string, ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws, userID: userID, lastSeen: time.Now()}

	h.mu.Lock()
	if _, ok := h.conns[userID]; !ok {
		h.conns[userID] = make(map[*Conn]struct{})
	}
	h.conns[userID][c] = struct{}{}
	total := len(h.conns[userID])
	h.mu.Unlock()

	h.logger.Info("ws connected", zap.String("user_id", userID), zap.Int("connections", total))
	return c
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	conns := h.conns[c.userID]
	if _, ok := conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.conns, c.userID)
	}
	h.mu.Unlock()

	_ = c.ws.Close()
	h.logger.Info("ws disconnected", zap.String("user_id", c.userID))
}

func (h *Hub) userConns(userID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		out = append(out, c)
	}
	return out
}

// Connections returns how many connections userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Dispatch pushes n to every connection of its user. A user with no open
// connection is not an error; the inbox still has the notification.
// Connections that fail to write are dropped.
func (h *Hub) Dispatch(_ context.Context, n store.Notification) error {
	conns := h.userConns(n.UserID)
	if len(conns) == 0 {
		return nil
	}

	msg := Message{Event: TypeReminder, Notification: n}
	var errs []error
	for _, c := range conns {
		if err := c.writeJSON(msg); err != nil {
			h.logger.Warn("ws send failed", zap.String("user_id", n.UserID), zap.Error(err))
			h.remove(c)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(conns) {
		return fmt.Errorf("ws dispatch to %s: %w", n.UserID, errors.Join(errs...))
	}
	return nil
}

// Serve upgrades the request and holds the connection open for userID until
// the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	c := h.add(userID, ws)
	defer h.remove(c)

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		c.touch()
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return nil
		}
		c.touch()
	}
}

// Heartbeat pings every connection each interval and drops the ones that
// have not answered in two intervals. Returns when ctx is done.
func (h *Hub) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.mu.RLock()
		var all []*Conn
		for _, conns := range h.conns {
			for c := range conns {
				all = append(all, c)
			}
		}
		h.mu.RUnlock()

		for _, c := range all {
			if time.Since(c.seen()) > 2*interval {
				h.remove(c)
				continue
			}
			if err := c.ping(); err != nil {
				h.remove(c)
			}
		}
	}
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Conn
	for _, conns := range h.conns {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.remove(c)
	}
}
