package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/logging"
)

const (
	maxConnections = 50
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// Hub keeps the websocket connections of the console's toast feed.
type Hub struct {
	mu          sync.Mutex
	connections map[*websocket.Conn]bool
	upgrader    websocket.Upgrader
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		connections: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the console is served from another origin in development
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Feed is a frame pushed to subscribers
type Feed struct {
	Type         string                `json:"type"`
	Notification db.SystemNotification `json:"notification"`
}

func (h *Hub) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.connections) >= maxConnections {
		h.logger.Warnf("websocket limit reached (%d)", maxConnections)
		return false
	}
	h.connections[conn] = true
	h.logger.Infof("websocket connected (total: %d)", len(h.connections))
	return true
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		conn.Close()
		h.logger.Infof("websocket disconnected (remaining: %d)", len(h.connections))
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Broadcast sends n to every subscriber and drops connections that fail.
func (h *Hub) Broadcast(n db.SystemNotification) {
	payload, err := json.Marshal(Feed{Type: "notification", Notification: n})
	if err != nil {
		h.logger.Errorf("marshal feed frame: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warnf("websocket write failed: %v", err)
			delete(h.connections, conn)
			conn.Close()
		}
	}
}

// Handle upgrades the request and keeps the connection until the client
// goes away. Incoming frames are ignored.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	if !h.add(conn) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	done := make(chan struct{})
	go h.ping(conn, done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.remove(conn)
}

func (h *Hub) ping(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			h.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
