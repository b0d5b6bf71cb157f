package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsEvent struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// Hub fans device events out to connected WebSocket clients. Slow clients
// are dropped rather than allowed to stall the rest.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan wsEvent
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan wsEvent)}
}

func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("ws: upgrade: %s", err)
		return
	}

	events := make(chan wsEvent, 32)
	h.mu.Lock()
	h.clients[conn] = events
	h.mu.Unlock()
	logrus.Debugf("ws: client connected from %s", r.RemoteAddr)

	go h.writeLoop(conn, events)

	// Drain reads so close frames and pings are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(conn)
}

func (h *Hub) writeLoop(conn *websocket.Conn, events chan wsEvent) {
	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.Close()
}

// Broadcast queues an event for every client.
func (h *Hub) Broadcast(key, value string) {
	ev := wsEvent{Key: key, Value: value, Timestamp: time.Now().Format(time.RFC3339)}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, events := range h.clients {
		select {
		case events <- ev:
		default:
			delete(h.clients, conn)
			close(events)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if events, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(events)
	}
	conn.Close()
}
