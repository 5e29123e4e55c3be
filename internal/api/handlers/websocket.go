package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/registry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Ping interval; must be shorter than pongWait.
	pingPeriod = 54 * time.Second
	// Maximum message size allowed from the peer.
	maxMessageSize = 512
	// Per-client send buffer.
	sendBufferSize = 16
)

// EventsHandler streams job state transitions to WebSocket clients. It
// subscribes to the registry once and fans events out to every
// connected client.
type EventsHandler struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// JobEvent is one message on the event stream.
type JobEvent struct {
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Job       registry.Job `json:"job"`
}

// NewEventsHandler creates the events handler and hooks it into the
// registry's observer list.
func NewEventsHandler(reg *registry.Registry, logger *logging.Logger) *EventsHandler {
	if logger == nil {
		logger = logging.Default()
	}

	h := &EventsHandler{
		logger: logger.WithComponent("events"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The API is origin-agnostic; auth happens via API key.
				return true
			},
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}

	reg.Subscribe(h.broadcast)
	return h
}

// Events handles GET /events: it upgrades the connection and streams
// job transitions until the client disconnects.
func (h *EventsHandler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	send := make(chan []byte, sendBufferSize)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "remote_addr", r.RemoteAddr)

	go h.writePump(conn, send)
	h.readPump(conn)
}

// broadcast is the registry observer: it serializes the job snapshot
// and queues it for every client, dropping messages for slow readers.
func (h *EventsHandler) broadcast(job registry.Job) {
	event := JobEvent{
		Type:      "job_update",
		Timestamp: time.Now().UTC(),
		Job:       job,
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode job event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- data:
		default:
			h.logger.Warn("dropping event for slow websocket client")
			h.dropLocked(conn)
		}
	}
}

func (h *EventsHandler) writePump(conn *websocket.Conn, send chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pong handling works, and removes the
// client when the connection dies.
func (h *EventsHandler) readPump(conn *websocket.Conn) {
	defer h.drop(conn)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventsHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(conn)
}

func (h *EventsHandler) dropLocked(conn *websocket.Conn) {
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	conn.Close()
}

// ClientCount returns the number of connected clients.
func (h *EventsHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
