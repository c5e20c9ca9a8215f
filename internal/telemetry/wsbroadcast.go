package telemetry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one debug event pushed to connected WebSocket clients: the
// chat bridges publish each StreamUpdate as it arrives. Bridge's tool
// span transitions are not published.
// Shape follows the teacher's bus.Event.
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

const writeTimeout = 5 * time.Second

// Broadcaster republishes every Event to all connected debug clients
// over WebSocket. It is purely observational: a client disconnecting or
// falling behind never affects the request it is watching.
type Broadcaster struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan Event
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		log:     logger,
		clients: make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast fans Event out to every connected client. A client whose
// send buffer is full misses this event rather than blocking the caller.
func (b *Broadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		select {
		case c.send <- event:
		default:
			b.log.Warn("debug client send buffer full, dropping event", "client_id", c.id, "event", event.Name)
		}
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error("debug websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{id: r.RemoteAddr, conn: conn, send: make(chan Event, 64)}
	b.register(client)
	defer b.unregister(client)

	// Drain and discard anything the client sends; this is a
	// push-only debug feed, but reading keeps the connection's
	// control frames (ping/close) flowing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for event := range client.send {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (b *Broadcaster) register(c *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c.id] = c
	b.log.Info("debug client connected", "client_id", c.id)
}

func (b *Broadcaster) unregister(c *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c.id]; ok {
		delete(b.clients, c.id)
		close(c.send)
	}
	b.log.Info("debug client disconnected", "client_id", c.id)
}
