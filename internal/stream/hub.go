package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans live updates out to connected websocket viewers. It implements
// Publisher; the subject is ignored. Publish may be called from several
// goroutines.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]*viewer
	logger *zap.Logger
}

// viewer serializes writes; a websocket connection allows one writer at a time.
type viewer struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (v *viewer) write(data []byte) error {
	v.wmu.Lock()
	defer v.wmu.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
	return v.conn.WriteMessage(websocket.TextMessage, data)
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{conns: make(map[*websocket.Conn]*viewer), logger: logger}
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = &viewer{conn: c}
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*viewer {
	h.mu.Lock()
	clients := make([]*viewer, 0, len(h.conns))
	for _, v := range h.conns {
		clients = append(clients, v)
	}
	h.mu.Unlock()
	return clients
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) Publish(_ string, data []byte) error {
	for _, v := range h.snapshot() {
		if err := v.write(data); err != nil {
			_ = v.conn.Close()
			h.remove(v.conn)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and holds the connection until the viewer
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.add(conn)
	defer func() {
		h.remove(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
